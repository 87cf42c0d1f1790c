package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1. The SQL
// must stay valid for both SQLite and PostgreSQL.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS run_records (
	user_id         TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'not_started',
	processed_count INTEGER NOT NULL DEFAULT 0,
	total_count     INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT,
	correlation_id  TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	CHECK (processed_count >= 0 AND total_count >= 0)
);

CREATE TABLE IF NOT EXISTS mail_records (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	message_id    TEXT NOT NULL,
	company_name  TEXT NOT NULL DEFAULT 'unknown',
	status_label  TEXT NOT NULL DEFAULT 'unknown',
	job_title     TEXT NOT NULL DEFAULT 'unknown',
	subject       TEXT NOT NULL DEFAULT '',
	sender        TEXT NOT NULL DEFAULT '',
	received_at   TIMESTAMP NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	UNIQUE (user_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_run_records_status ON run_records(status);
CREATE INDEX IF NOT EXISTS idx_mail_records_user ON mail_records(user_id);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE run_records ADD COLUMN outcome TEXT NOT NULL DEFAULT '';
ALTER TABLE run_records ADD COLUMN version BIGINT NOT NULL DEFAULT 1;
ALTER TABLE run_records ADD COLUMN window_start TIMESTAMP;
ALTER TABLE run_records ADD COLUMN last_item_id TEXT NOT NULL DEFAULT '';
ALTER TABLE run_records ADD COLUMN last_success_at TIMESTAMP;
`,
	},
	{
		version: 3,
		sql: `
ALTER TABLE mail_records ADD COLUMN classified_by TEXT NOT NULL DEFAULT '';
ALTER TABLE mail_records ADD COLUMN confidence DOUBLE PRECISION NOT NULL DEFAULT 0;

CREATE INDEX IF NOT EXISTS idx_mail_records_user_received
	ON mail_records(user_id, received_at);
`,
	},
	{
		version: 4,
		sql: `
ALTER TABLE run_records ADD COLUMN mailbox TEXT NOT NULL DEFAULT '';
ALTER TABLE run_records ADD COLUMN text_filter TEXT NOT NULL DEFAULT '';
`,
	},
}
