package store

import (
	"context"
	"errors"

	"github.com/nhle/applytrack/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a run record write loses a
	// compare-and-swap on its version.
	ErrConflict = errors.New("run record was modified concurrently")
)

// Store defines the persistence interface for users, run records, and
// classified mail records.
type Store interface {
	// === Users ===

	UpsertUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	// === Run records ===

	// GetRun returns the user's run record or ErrNotFound.
	GetRun(ctx context.Context, userID string) (*model.RunRecord, error)

	// UpsertRun writes run. A zero Version inserts a new record; any
	// other Version updates the stored record only if it still carries
	// that version. ErrConflict is returned otherwise. On success
	// run.Version holds the new version.
	UpsertRun(ctx context.Context, run *model.RunRecord) error

	// Checkpoint inserts records and upserts run in one transaction.
	Checkpoint(ctx context.Context, run *model.RunRecord, records []model.MailRecord) error

	// ListRuns returns every run record with the given status.
	ListRuns(ctx context.Context, status model.RunStatus) ([]model.RunRecord, error)

	// === Mail records ===

	// Exists reports whether a record for (userID, messageID) is stored.
	Exists(ctx context.Context, userID, messageID string) (bool, error)

	// BulkInsert stores records, skipping any (user, message) pair that
	// is already present. It returns the number of rows inserted.
	BulkInsert(ctx context.Context, records []model.MailRecord) (int, error)

	ListMailRecords(ctx context.Context, userID string) ([]model.MailRecord, error)
}
