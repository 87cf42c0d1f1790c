package ratelimit

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/applytrack/internal/classify"
	"github.com/nhle/applytrack/internal/model"
)

func classifierAt(now time.Time) *Classifier {
	return NewClassifier(model.RetryConfig{}).WithClock(func() time.Time { return now })
}

func TestRPMAlwaysRetries(t *testing.T) {
	c := classifierAt(time.Now())

	for attempt := range 20 {
		d := c.Classify("Quota exceeded for requests per minute", attempt)
		assert.Equal(t, KindRPM, d.Kind)
		assert.True(t, d.Retry, "attempt %d", attempt)
		assert.LessOrEqual(t, d.Wait, 60*time.Second)
	}

	d := c.Classify("RPM limit hit, retry after 12.5 seconds", 0)
	assert.Equal(t, 12500*time.Millisecond, d.Wait)

	d = c.Classify("per minute limit, retry after 600 seconds", 0)
	assert.Equal(t, 60*time.Second, d.Wait)
}

func TestDailyAbortsFarFromReset(t *testing.T) {
	// 10:00 UTC leaves 14h until midnight.
	c := classifierAt(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))

	d := c.Classify("429 RESOURCE_EXHAUSTED", 0)
	assert.Equal(t, KindDaily, d.Kind)
	assert.False(t, d.Retry)
	assert.Equal(t, 14*time.Hour, d.Wait)
}

func TestDailyRetriesNearReset(t *testing.T) {
	c := classifierAt(time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC))

	d := c.Classify("daily quota exhausted", 0)
	assert.Equal(t, KindDaily, d.Kind)
	assert.True(t, d.Retry)
	assert.Equal(t, 30*time.Minute, d.Wait)
}

func TestDailyResetHourIsConfigurable(t *testing.T) {
	now := time.Date(2026, 1, 1, 7, 45, 0, 0, time.UTC)
	c := NewClassifier(model.RetryConfig{DailyResetHourUTC: 8}).
		WithClock(func() time.Time { return now })

	d := c.Classify("limit per day reached", 0)
	assert.True(t, d.Retry)
	assert.Equal(t, 15*time.Minute, d.Wait)
}

func TestDailyHintOverridesReset(t *testing.T) {
	c := classifierAt(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))

	d := c.Classify(`RESOURCE_EXHAUSTED {"retryDelay": "42s"}`, 0)
	assert.True(t, d.Retry)
	assert.Equal(t, 42*time.Second, d.Wait)
}

func TestDailyHintInGoMapDetails(t *testing.T) {
	c := classifierAt(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))

	// genai prints APIError details as a Go map, without quotes.
	msg := "Error 429, Message: You exceeded your current quota, Status: RESOURCE_EXHAUSTED, " +
		"Details: [map[@type:type.googleapis.com/google.rpc.RetryInfo retryDelay:37s]]"
	d := c.Classify(msg, 0)
	assert.Equal(t, KindDaily, d.Kind)
	assert.True(t, d.Retry)
	assert.Equal(t, 37*time.Second, d.Wait)
}

func TestUnknownBacksOffThenAborts(t *testing.T) {
	c := NewClassifier(model.RetryConfig{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffCap:  3 * time.Second,
	})

	assert.Equal(t, Decision{Kind: KindUnknown, Wait: time.Second, Retry: true}, c.Classify("boom", 0))
	assert.Equal(t, Decision{Kind: KindUnknown, Wait: 2 * time.Second, Retry: true}, c.Classify("boom", 1))
	assert.Equal(t, Decision{Kind: KindUnknown, Wait: 3 * time.Second, Retry: true}, c.Classify("boom", 2))
	assert.Equal(t, Decision{Kind: KindUnknown, Retry: false}, c.Classify("boom", 3))
}

func TestUnknownDefaults(t *testing.T) {
	c := NewClassifier(model.RetryConfig{})
	assert.Equal(t, 5*time.Second, c.Classify("x", 0).Wait)
	assert.Equal(t, 80*time.Second, c.Classify("x", 4).Wait)
	assert.False(t, c.Classify("x", 5).Retry)
	assert.Equal(t, 5, c.MaxAttempts())

	assert.Equal(t, 30*time.Second, c.Classify("please retry in 30s", 0).Wait)
}

func TestIsQuotaError(t *testing.T) {
	assert.True(t, IsQuotaError(fmt.Errorf("x: %w", &classify.ProviderError{Kind: classify.KindQuota})))
	assert.True(t, IsQuotaError(errors.New("HTTP 429 Too Many Requests")))
	assert.True(t, IsQuotaError(errors.New("RESOURCE_EXHAUSTED")))
	assert.False(t, IsQuotaError(errors.New("connection refused")))
	assert.False(t, IsQuotaError(nil))
}
