package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/applytrack/internal/model"
)

const runColumns = `
	user_id, status, outcome, processed_count, total_count,
	error_message, correlation_id, window_start, mailbox, text_filter,
	last_item_id, last_success_at, version, created_at, updated_at`

// GetRun retrieves the run record for a user.
func (s *SQLStore) GetRun(
	ctx context.Context,
	userID string,
) (*model.RunRecord, error) {
	var run model.RunRecord
	err := s.db.GetContext(ctx, &run,
		s.db.Rebind("SELECT"+runColumns+" FROM run_records WHERE user_id = ?"),
		userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting run for user %s: %w", userID, err)
	}
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	return &run, nil
}

// UpsertRun inserts or compare-and-swap updates a run record.
func (s *SQLStore) UpsertRun(ctx context.Context, run *model.RunRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeRun(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run for user %s: %w", run.UserID, err)
	}
	run.Version++
	return nil
}

// Checkpoint inserts the classified records and advances the run record
// in a single transaction, so the counter never runs ahead of the data.
func (s *SQLStore) Checkpoint(
	ctx context.Context,
	run *model.RunRecord,
	records []model.MailRecord,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := insertMailRecords(ctx, tx, records); err != nil {
		return err
	}
	if err := writeRun(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing checkpoint for user %s: %w", run.UserID, err)
	}
	run.Version++
	return nil
}

// ListRuns returns all run records in the given status, oldest update first.
func (s *SQLStore) ListRuns(
	ctx context.Context,
	status model.RunStatus,
) ([]model.RunRecord, error) {
	var runs []model.RunRecord
	err := s.db.SelectContext(ctx, &runs,
		s.db.Rebind("SELECT"+runColumns+" FROM run_records WHERE status = ? ORDER BY updated_at"),
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s runs: %w", status, err)
	}
	return runs, nil
}

// writeRun performs the insert-or-CAS-update of a run record inside tx.
// It does not touch run.Version; callers bump it after commit.
func writeRun(ctx context.Context, tx *sqlx.Tx, run *model.RunRecord) error {
	if run.UserID == "" {
		return errors.New("run record requires a user id")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.Status == "" {
		run.Status = model.RunNotStarted
	}

	var (
		result sql.Result
		err    error
	)

	if run.Version == 0 {
		result, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO run_records (`+runColumns+`
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO NOTHING`),
			run.UserID, string(run.Status), string(run.Outcome),
			run.ProcessedCount, run.TotalCount,
			run.ErrorMessage, run.CorrelationID, utcPtr(run.WindowStart),
			run.Mailbox, run.TextFilter, run.LastItemID,
			utcPtr(run.LastSuccessAt), 1, run.CreatedAt.UTC(), run.UpdatedAt.UTC(),
		)
	} else {
		result, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE run_records SET
				status = ?, outcome = ?, processed_count = ?, total_count = ?,
				error_message = ?, correlation_id = ?, window_start = ?,
				mailbox = ?, text_filter = ?,
				last_item_id = ?, last_success_at = ?, updated_at = ?,
				version = version + 1
			WHERE user_id = ? AND version = ?`),
			string(run.Status), string(run.Outcome), run.ProcessedCount, run.TotalCount,
			run.ErrorMessage, run.CorrelationID, utcPtr(run.WindowStart),
			run.Mailbox, run.TextFilter,
			run.LastItemID, utcPtr(run.LastSuccessAt), run.UpdatedAt.UTC(),
			run.UserID, run.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("writing run for user %s: %w", run.UserID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking run write for user %s: %w", run.UserID, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
