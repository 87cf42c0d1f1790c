package model

import "time"

// RunStatus is the lifecycle state of a user's ingestion run.
type RunStatus string

const (
	RunNotStarted RunStatus = "not_started"
	RunStarted    RunStatus = "started"
	RunFinished   RunStatus = "finished"
)

// RunOutcome tells apart the ways a run can reach RunFinished.
// It is empty while the run has not finished.
type RunOutcome string

const (
	OutcomeNone RunOutcome = ""

	// OutcomeSucceeded means every candidate was accounted for.
	OutcomeSucceeded RunOutcome = "succeeded"

	// OutcomeFailedResumable means the run stopped on a temporary
	// condition (daily quota, retry ceiling) and a later run can pick
	// up where it left off.
	OutcomeFailedResumable RunOutcome = "failed_resumable"

	// OutcomeFailed means the run stopped on a permanent condition
	// (bad credentials, unknown user, malformed provider response).
	OutcomeFailed RunOutcome = "failed"
)

// RunRecord is the durable progress record of a user's ingestion run.
// There is at most one per user; it is upserted, never duplicated.
type RunRecord struct {
	// UserID identifies the owner of the run.
	UserID string `json:"user_id" db:"user_id"`

	// Status is the lifecycle state.
	Status RunStatus `json:"status" db:"status"`

	// Outcome qualifies a finished run.
	Outcome RunOutcome `json:"outcome" db:"outcome"`

	// ProcessedCount is the checkpoint: candidates [0, ProcessedCount)
	// have been fully accounted for.
	ProcessedCount int `json:"processed_count" db:"processed_count"`

	// TotalCount is the size of the candidate list for this run.
	TotalCount int `json:"total_count" db:"total_count"`

	// ErrorMessage is set when the run aborts and cleared on a fresh start.
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// CorrelationID is the queue execution id driving the run.
	CorrelationID string `json:"correlation_id" db:"correlation_id"`

	// WindowStart is the enumeration lower bound. A resumed run reuses it
	// so the candidate list is fetched with the same query.
	WindowStart *time.Time `json:"window_start,omitempty" db:"window_start"`

	// Mailbox and TextFilter are the rest of the enumeration query. Like
	// WindowStart they are fixed when a run starts fresh.
	Mailbox    string `json:"mailbox,omitempty" db:"mailbox"`
	TextFilter string `json:"text_filter,omitempty" db:"text_filter"`

	// LastItemID is the id of the candidate at ProcessedCount-1.
	LastItemID string `json:"last_item_id" db:"last_item_id"`

	// LastSuccessAt is when the user's last successful run finished.
	LastSuccessAt *time.Time `json:"last_success_at,omitempty" db:"last_success_at"`

	// Version is bumped on every write; writes are compare-and-swap on it.
	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Resumable reports whether the record describes an interrupted or
// temporarily aborted run that can continue from its checkpoint.
func (r RunRecord) Resumable() bool {
	interrupted := r.Status == RunStarted ||
		(r.Status == RunFinished && r.Outcome == OutcomeFailedResumable)
	return interrupted &&
		r.TotalCount > 0 &&
		r.ProcessedCount > 0 &&
		r.ProcessedCount < r.TotalCount
}

// Error returns the error message or the empty string.
func (r RunRecord) Error() string {
	if r.ErrorMessage == nil {
		return ""
	}
	return *r.ErrorMessage
}
