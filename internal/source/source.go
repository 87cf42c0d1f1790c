package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError indicates that authentication has failed or expired for a source.
// Runs treat it as permanent: retrying with the same credentials cannot help.
type AuthError struct {
	SourceType SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ErrUnavailable means the source could not be reached, even after a
// reconnect. Runs stop on it and resume later rather than skip the item.
var ErrUnavailable = errors.New("mail source unavailable")

// SourceType identifies the kind of mail source.
type SourceType string

const SourceTypeIMAP SourceType = "imap"

// Query selects the candidate messages of a run.
type Query struct {
	// Mailbox to search; empty means INBOX.
	Mailbox string

	// Since is the lower bound on the message date.
	Since time.Time

	// Text optionally restricts candidates to messages containing it.
	Text string
}

// Item is the content of a single message.
type Item struct {
	ID        string
	Text      string
	Subject   string
	Sender    string
	Timestamp time.Time
}

// Credentials authenticate a user against a mail source.
type Credentials struct {
	Username string
	Password string
}

// MailSource is the contract the ingestion orchestrator consumes.
type MailSource interface {
	// ListCandidateIDs returns message ids matching q. The order must be
	// stable across calls for the same query so a checkpoint offset
	// keeps pointing at the same message.
	ListCandidateIDs(ctx context.Context, q Query) ([]string, error)

	// FetchItem returns the full content of one message.
	FetchItem(ctx context.Context, id string) (Item, error)
}

// Factory builds a MailSource for one user's credentials.
type Factory func(ctx context.Context, creds Credentials) (MailSource, error)
