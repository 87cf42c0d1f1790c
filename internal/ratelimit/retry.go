package ratelimit

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/applytrack/internal/classify"
	"github.com/nhle/applytrack/internal/model"
)

// Kind is the quota a provider failure was attributed to.
type Kind string

const (
	KindRPM     Kind = "rpm"
	KindDaily   Kind = "daily"
	KindUnknown Kind = "unknown"
)

// Decision tells the orchestrator what to do about a provider failure.
// Retry false means abort the run.
type Decision struct {
	Kind  Kind
	Wait  time.Duration
	Retry bool
}

const (
	rpmWait            = time.Minute
	defaultDailyAbort  = time.Hour
	defaultMaxAttempts = 5
	defaultBackoffBase = 5 * time.Second
	defaultBackoffCap  = 5 * time.Minute
)

var hintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry after ([\d.]+) seconds?`),
	regexp.MustCompile(`(?i)retry in ([\d.]+)\s*s`),
	regexp.MustCompile(`(?i)"?retryDelay"?\s*:\s*"?([\d.]+)s`),
}

// Classifier turns provider error text into a retry decision.
type Classifier struct {
	cfg model.RetryConfig
	now func() time.Time
}

// NewClassifier creates a Classifier. Zero fields in cfg take defaults.
func NewClassifier(cfg model.RetryConfig) *Classifier {
	if cfg.DailyAbortThreshold <= 0 {
		cfg.DailyAbortThreshold = defaultDailyAbort
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	return &Classifier{cfg: cfg, now: time.Now}
}

// WithClock replaces time.Now; used to pin the daily reset computation.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// MaxAttempts returns the consecutive-failure ceiling for unknown errors.
func (c *Classifier) MaxAttempts() int { return c.cfg.MaxAttempts }

// Classify inspects errText. attempt counts the consecutive failures
// already seen by the run, starting at 0.
func (c *Classifier) Classify(errText string, attempt int) Decision {
	lower := strings.ToLower(errText)
	hint, hasHint := waitHint(errText)

	switch {
	case strings.Contains(lower, "per minute") || strings.Contains(lower, "rpm"):
		wait := rpmWait
		if hasHint {
			wait = min(hint, rpmWait)
		}
		return Decision{Kind: KindRPM, Wait: wait, Retry: true}

	case strings.Contains(lower, "per day") || strings.Contains(lower, "daily") ||
		strings.Contains(lower, "resource_exhausted"):
		wait := c.untilDailyReset()
		if hasHint {
			wait = hint
		}
		if wait > c.cfg.DailyAbortThreshold {
			return Decision{Kind: KindDaily, Wait: wait, Retry: false}
		}
		return Decision{Kind: KindDaily, Wait: wait, Retry: true}
	}

	if attempt >= c.cfg.MaxAttempts {
		return Decision{Kind: KindUnknown, Retry: false}
	}
	wait := c.backoff(attempt)
	if hasHint {
		wait = min(hint, c.cfg.BackoffCap)
	}
	return Decision{Kind: KindUnknown, Wait: wait, Retry: true}
}

// backoff returns min(base * 2^attempt, cap).
func (c *Classifier) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	f := float64(c.cfg.BackoffBase) * math.Pow(2, float64(attempt))
	if f >= float64(c.cfg.BackoffCap) {
		return c.cfg.BackoffCap
	}
	return time.Duration(f)
}

// untilDailyReset returns the time left until the next daily quota reset.
func (c *Classifier) untilDailyReset() time.Duration {
	now := c.now().UTC()
	reset := time.Date(now.Year(), now.Month(), now.Day(),
		c.cfg.DailyResetHourUTC, 0, 0, 0, time.UTC)
	if !reset.After(now) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset.Sub(now)
}

func waitHint(text string) (time.Duration, bool) {
	for _, re := range hintPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil || secs < 0 {
			continue
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}

// IsQuotaError reports whether err signals a provider rate or quota limit.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, classify.ErrQuota) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, s := range []string{"429", "quota", "rate limit", "resource_exhausted"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
