package ingest

import (
	"errors"
)

var (
	// ErrUnknownUser is recorded when a run is requested for a user the
	// store does not know.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidCredentials is recorded when the mail source rejects the
	// user's credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// errSkipItem marks a single item whose provider call failed twice.
	errSkipItem = errors.New("item skipped after retry")
)

// permanentError marks a failure no later run can get past without
// outside intervention. It finishes the run with OutcomeFailed.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
