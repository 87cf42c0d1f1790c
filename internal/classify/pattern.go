package classify

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nhle/applytrack/internal/model"
)

// DefaultPatternThreshold is the confidence a pattern must exceed to be used.
const DefaultPatternThreshold = 0.85

// Pattern maps a phrase to a label with a fixed confidence.
type Pattern struct {
	Phrase     string  `yaml:"phrase"`
	Label      string  `yaml:"label"`
	Confidence float64 `yaml:"confidence"`
}

// BuiltinPatterns are high-precision phrases only. Entries at or below the
// threshold stay in the table but never short-circuit a provider call.
var BuiltinPatterns = []Pattern{
	{Phrase: "we regret to inform", Label: LabelRejection, Confidence: 0.95},
	{Phrase: "thank you for applying", Label: LabelApplied, Confidence: 0.9},
	{Phrase: "congratulations", Label: LabelOffer, Confidence: 0.9},
	{Phrase: "unfortunately", Label: LabelRejection, Confidence: 0.8},
	{Phrase: "interview", Label: LabelInterview, Confidence: 0.8},
}

// PatternCache answers from the pattern table without calling a provider.
type PatternCache struct {
	patterns  []Pattern
	threshold float64
}

// NewPatternCache builds a cache from the built-in table plus extra.
// Patterns are checked in descending confidence order.
func NewPatternCache(threshold float64, extra ...Pattern) *PatternCache {
	patterns := make([]Pattern, 0, len(BuiltinPatterns)+len(extra))
	for _, p := range append(append([]Pattern{}, BuiltinPatterns...), extra...) {
		p.Phrase = strings.ToLower(strings.TrimSpace(p.Phrase))
		patterns = append(patterns, p)
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})

	return &PatternCache{patterns: patterns, threshold: threshold}
}

// Lookup returns the result of the most confident pattern found in text,
// if its confidence exceeds the threshold.
func (c *PatternCache) Lookup(text string) (Result, bool) {
	lower := strings.ToLower(text)
	for _, p := range c.patterns {
		if p.Confidence <= c.threshold {
			break
		}
		if strings.Contains(lower, p.Phrase) {
			return Result{
				Label:       p.Label,
				CompanyName: model.Unknown,
				JobTitle:    model.Unknown,
				Confidence:  p.Confidence,
				Source:      "pattern:" + p.Phrase,
			}, true
		}
	}
	return Result{}, false
}

// Patterns returns the effective table in lookup order.
func (c *PatternCache) Patterns() []Pattern {
	return append([]Pattern(nil), c.patterns...)
}

// Threshold returns the confidence a pattern must exceed.
func (c *PatternCache) Threshold() float64 { return c.threshold }

type patternFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// LoadPatterns reads extra patterns from a YAML file of the form
//
//	patterns:
//	  - phrase: "your application has been received"
//	    label: Applied
//	    confidence: 0.92
func LoadPatterns(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patterns file %s: %w", path, err)
	}

	var f patternFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing patterns file %s: %w", path, err)
	}

	for i, p := range f.Patterns {
		if strings.TrimSpace(p.Phrase) == "" {
			return nil, fmt.Errorf("pattern %d: phrase is required", i)
		}
		label := canonicalLabel(p.Label)
		if label == model.Unknown {
			return nil, fmt.Errorf("pattern %d: unknown label %q", i, p.Label)
		}
		if p.Confidence <= 0 || p.Confidence > 1 {
			return nil, fmt.Errorf("pattern %d: confidence must be within (0, 1]", i)
		}
		f.Patterns[i].Label = label
	}

	return f.Patterns, nil
}
