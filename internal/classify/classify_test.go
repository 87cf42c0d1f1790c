package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/applytrack/internal/model"
)

func TestNormalize(t *testing.T) {
	r := Normalize(Result{Label: "  rejection ", CompanyName: "Acme"})
	assert.Equal(t, LabelRejection, r.Label)
	assert.Equal(t, "Acme", r.CompanyName)
	assert.Equal(t, model.Unknown, r.JobTitle)

	r = Normalize(Result{Label: "Ghosted", CompanyName: " ", JobTitle: "Unknown"})
	assert.Equal(t, model.Unknown, r.Label)
	assert.Equal(t, model.Unknown, r.CompanyName)
	assert.Equal(t, model.Unknown, r.JobTitle)

	r = Normalize(Result{Label: "false positive"})
	assert.True(t, r.NotRelevant())
}

func TestProviderErrorIs(t *testing.T) {
	err := fmt.Errorf("item 3: %w", &ProviderError{Provider: "gemini", Kind: KindQuota, Message: "x"})
	assert.ErrorIs(t, err, ErrQuota)
	assert.NotErrorIs(t, err, ErrAuth)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "gemini", pe.Provider)
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED", ErrQuota},
		{"quota exceeded for requests per minute", ErrQuota},
		{"Error 403, Message: API key not valid", ErrAuth},
		{"connection reset by peer", ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := wrapError("gemini", errors.New(tt.msg))
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	assert.ErrorIs(t, wrapError("x", context.DeadlineExceeded), ErrTransient)
	assert.ErrorIs(t, wrapError("x", context.DeadlineExceeded), context.DeadlineExceeded)
	assert.NoError(t, wrapError("x", nil))

	// Already-typed errors pass through untouched.
	orig := &ProviderError{Provider: "a", Kind: KindMalformed}
	assert.Same(t, orig, wrapError("b", orig))
}

func TestParseResult(t *testing.T) {
	r, err := parseResult("p", "```json\n{\"company_name\": \"Acme\", \"job_application_status\": \"Rejection\", \"job_title\": \"\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, LabelRejection, r.Label)
	assert.Equal(t, "Acme", r.CompanyName)
	assert.Equal(t, model.Unknown, r.JobTitle)
	assert.Equal(t, "p", r.Source)

	_, err = parseResult("p", "I think this is a rejection")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = parseResult("p", `{"company_name": "Acme"}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseBatch(t *testing.T) {
	got, err := parseBatch("p", `[
		{"email_id": "1", "job_application_status": "Applied", "company_name": "A"},
		{"email_id": "2", "job_application_status": "False positive"},
		{"email_id": "", "job_application_status": "Applied"}
	]`)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, LabelApplied, got["1"].Label)
	assert.True(t, got["2"].NotRelevant())

	got, err = parseBatch("p", `{"results": [{"email_id": "9", "job_application_status": "Viewed"}]}`)
	require.NoError(t, err)
	assert.Equal(t, LabelViewed, got["9"].Label)

	_, err = parseBatch("p", `{"a": [], "b": []}`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPromptListsVocabulary(t *testing.T) {
	p := Prompt("hello")
	for _, l := range Labels {
		assert.Contains(t, p, l)
	}
	assert.Contains(t, p, "Email: hello")
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	s := truncate("héllo", 2)
	assert.Equal(t, "h", s)
	assert.Equal(t, "abc", truncate("abc", 10))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, model.ProviderConfig{Name: ProviderStatic}, "")
	require.NoError(t, err)
	assert.Equal(t, "static", p.Name())

	_, err = New(ctx, model.ProviderConfig{Name: ProviderAnthropic}, "")
	require.Error(t, err)

	p, err = New(ctx, model.ProviderConfig{Name: ProviderAnthropic}, "key")
	require.NoError(t, err)
	_, ok := p.(BatchProvider)
	assert.True(t, ok)

	_, err = New(ctx, model.ProviderConfig{Name: "bard"}, "key")
	require.Error(t, err)

	assert.True(t, NeedsAPIKey(ProviderGemini))
	assert.False(t, NeedsAPIKey(ProviderOllama))
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(StaticRule{
		Contains: "acme",
		Result:   Result{Label: "Rejection", CompanyName: "Acme"},
	})

	r, err := s.Classify(ctx, "Hello from ACME")
	require.NoError(t, err)
	assert.Equal(t, LabelRejection, r.Label)
	assert.Equal(t, "static", r.Source)

	r, err = s.Classify(ctx, "newsletter")
	require.NoError(t, err)
	assert.True(t, r.NotRelevant())

	s.FailNext(&ProviderError{Provider: "static", Kind: KindQuota, Message: "per minute"})
	_, err = s.Classify(ctx, "acme")
	assert.ErrorIs(t, err, ErrQuota)
	assert.Equal(t, 3, s.Calls())

	got, err := s.ClassifyBatch(ctx, []BatchItem{{ID: "a", Text: "acme"}, {ID: "b", Text: "x"}})
	require.NoError(t, err)
	assert.Equal(t, LabelRejection, got["a"].Label)
	assert.True(t, got["b"].NotRelevant())
	assert.Equal(t, 1, s.BatchCalls())
}
