package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternLookup(t *testing.T) {
	c := NewPatternCache(DefaultPatternThreshold)

	r, ok := c.Lookup("Dear Ana, We Regret To Inform you that the position was filled.")
	require.True(t, ok)
	assert.Equal(t, LabelRejection, r.Label)
	assert.Equal(t, 0.95, r.Confidence)
	assert.Equal(t, "pattern:we regret to inform", r.Source)

	r, ok = c.Lookup("Congratulations! We are happy to extend an offer.")
	require.True(t, ok)
	assert.Equal(t, LabelOffer, r.Label)

	// Entries at or below the threshold never hit.
	_, ok = c.Lookup("Unfortunately we would like to schedule an interview")
	assert.False(t, ok)

	_, ok = c.Lookup("weekly newsletter")
	assert.False(t, ok)
}

func TestPatternLookupPrefersHigherConfidence(t *testing.T) {
	c := NewPatternCache(DefaultPatternThreshold)

	r, ok := c.Lookup("Thank you for applying. We regret to inform you...")
	require.True(t, ok)
	assert.Equal(t, LabelRejection, r.Label)
}

func TestPatternThresholdIsConfigurable(t *testing.T) {
	c := NewPatternCache(0.5)
	r, ok := c.Lookup("we would like to invite you to an interview")
	require.True(t, ok)
	assert.Equal(t, LabelInterview, r.Label)
	assert.Equal(t, 0.5, c.Threshold())
}

func TestLoadPatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
patterns:
  - phrase: "Your application has been received"
    label: applied
    confidence: 0.92
`), 0o600))

	extra, err := LoadPatterns(path)
	require.NoError(t, err)
	require.Len(t, extra, 1)
	assert.Equal(t, LabelApplied, extra[0].Label)

	c := NewPatternCache(DefaultPatternThreshold, extra...)
	r, ok := c.Lookup("YOUR APPLICATION HAS BEEN RECEIVED by our team")
	require.True(t, ok)
	assert.Equal(t, LabelApplied, r.Label)
	assert.Equal(t, 0.92, r.Confidence)
	assert.Len(t, c.Patterns(), len(BuiltinPatterns)+1)
	assert.Equal(t, 0.95, c.Patterns()[0].Confidence)
}

func TestLoadPatternsRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()

	for name, body := range map[string]string{
		"label":      "patterns:\n  - phrase: x\n    label: Maybe\n    confidence: 0.9\n",
		"confidence": "patterns:\n  - phrase: x\n    label: Applied\n    confidence: 1.5\n",
		"phrase":     "patterns:\n  - label: Applied\n    confidence: 0.9\n",
		"yaml":       "patterns: [",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadPatterns(path)
			require.Error(t, err)
		})
	}

	_, err := LoadPatterns(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestBatch(t *testing.T) {
	b := NewBatch(2)
	assert.False(t, b.Add(BatchItem{ID: "1", Text: "one"}))
	assert.True(t, b.Add(BatchItem{ID: "2", Text: "two"}))
	assert.Equal(t, 2, b.Len())

	items := b.Drain()
	assert.Len(t, items, 2)
	assert.Equal(t, 0, b.Len())

	p := batchPrompt(items)
	assert.Contains(t, p, "(ID: 1)")
	assert.Contains(t, p, "(ID: 2)")

	assert.True(t, NewBatch(0).Add(BatchItem{ID: "x"}))
}
