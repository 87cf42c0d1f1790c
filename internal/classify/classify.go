// Package classify turns message text into a job-application status.
//
// A Provider wraps one external text classifier. Every provider shares the
// same prompt, the same JSON response shape and the same Normalize step, so
// the orchestrator never branches on provider identity.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/applytrack/internal/model"
)

// Status labels. LabelFalsePositive marks a message that is not about a job
// application; such items are discarded rather than stored.
const (
	LabelViewed         = "Viewed"
	LabelApplied        = "Applied"
	LabelRejection      = "Rejection"
	LabelAvailability   = "Availability request"
	LabelInformation    = "Information request"
	LabelAssessment     = "Assessment sent"
	LabelInterview      = "Interview invitation"
	LabelInbound        = "Did not apply - inbound request"
	LabelActionRequired = "Action required from company"
	LabelHiringFreeze   = "Hiring freeze notification"
	LabelWithdrew       = "Withdrew application"
	LabelOffer          = "Offer made"
	LabelFalsePositive  = "False positive"
)

// Labels is the closed status vocabulary, in prompt order.
var Labels = []string{
	LabelViewed,
	LabelApplied,
	LabelRejection,
	LabelAvailability,
	LabelInformation,
	LabelAssessment,
	LabelInterview,
	LabelInbound,
	LabelActionRequired,
	LabelHiringFreeze,
	LabelWithdrew,
	LabelOffer,
	LabelFalsePositive,
}

// Result is a normalized classification.
type Result struct {
	Label       string
	CompanyName string
	JobTitle    string

	// Confidence is set by the pattern cache; providers report 0.
	Confidence float64

	// Source is "pattern:<phrase>" or the provider name.
	Source string
}

// NotRelevant reports whether the item should be discarded.
func (r Result) NotRelevant() bool {
	return r.Label == LabelFalsePositive
}

// Normalize maps the label onto the vocabulary (case-insensitively) and
// replaces empty or unrecognized values with model.Unknown.
func Normalize(r Result) Result {
	r.Label = canonicalLabel(r.Label)
	r.CompanyName = orUnknown(r.CompanyName)
	r.JobTitle = orUnknown(r.JobTitle)
	return r
}

func canonicalLabel(label string) string {
	label = strings.TrimSpace(label)
	for _, l := range Labels {
		if strings.EqualFold(l, label) {
			return l
		}
	}
	return model.Unknown
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, model.Unknown) {
		return model.Unknown
	}
	return s
}

// Provider classifies one message.
type Provider interface {
	Name() string
	Classify(ctx context.Context, text string) (Result, error)
}

// BatchItem is one message of a batched provider call.
type BatchItem struct {
	ID   string
	Text string
}

// BatchProvider can classify several messages in one call. Results are keyed
// by BatchItem.ID; items missing from the map were not classified.
type BatchProvider interface {
	Provider
	ClassifyBatch(ctx context.Context, items []BatchItem) (map[string]Result, error)
}

// ErrorKind groups provider failures by how the orchestrator reacts.
type ErrorKind string

const (
	KindQuota     ErrorKind = "quota"
	KindAuth      ErrorKind = "auth"
	KindMalformed ErrorKind = "malformed"
	KindTransient ErrorKind = "transient"
)

// Sentinels matched by errors.Is against a *ProviderError of the same kind.
var (
	ErrQuota     = errors.New("provider quota exceeded")
	ErrAuth      = errors.New("provider rejected credentials")
	ErrMalformed = errors.New("provider response malformed")
	ErrTransient = errors.New("provider call failed")
)

// ProviderError is returned by every Provider. Message keeps the provider's
// own wording, which the retry classifier inspects for wait hints.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrQuota) and friends match on Kind.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrQuota:
		return e.Kind == KindQuota
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

// wrapError converts a client library error into a *ProviderError, sorting
// it by the status codes and wording providers use.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	kind := KindTransient
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindTransient
	case containsAny(lower, "429", "quota", "rate limit", "rate_limit",
		"resource_exhausted", "too many requests", "per minute", "per day"):
		kind = KindQuota
	case containsAny(lower, "401", "403", "api key", "api_key",
		"unauthenticated", "permission_denied", "unauthorized"):
		kind = KindAuth
	}

	return &ProviderError{Provider: provider, Kind: kind, Message: msg, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
