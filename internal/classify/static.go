package classify

import (
	"context"
	"strings"
	"sync"
)

// StaticRule answers with Result when the text contains Contains.
type StaticRule struct {
	Contains string
	Result   Result
}

// Static is a deterministic provider. It answers from Rules, falling back to
// Fallback, and counts its calls. Errors queued with FailNext are returned
// before any answer.
type Static struct {
	Rules    []StaticRule
	Fallback Result

	mu         sync.Mutex
	calls      int
	batchCalls int
	failures   []error
}

// NewStatic creates a Static provider that treats unmatched text as not
// relevant, so a dry run only stores what the pattern cache recognizes.
func NewStatic(rules ...StaticRule) *Static {
	return &Static{
		Rules:    rules,
		Fallback: Result{Label: LabelFalsePositive},
	}
}

func (s *Static) Name() string { return "static" }

// FailNext queues errors returned by the next calls, one per call.
func (s *Static) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Calls returns how many single-message calls were made.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// BatchCalls returns how many batched calls were made.
func (s *Static) BatchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchCalls
}

func (s *Static) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	s.calls++
	err := s.popFailure()
	s.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	return s.answer(text), nil
}

func (s *Static) ClassifyBatch(ctx context.Context, items []BatchItem) (map[string]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.batchCalls++
	err := s.popFailure()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(map[string]Result, len(items))
	for _, item := range items {
		out[item.ID] = s.answer(item.Text)
	}
	return out, nil
}

func (s *Static) popFailure() error {
	if len(s.failures) == 0 {
		return nil
	}
	err := s.failures[0]
	s.failures = s.failures[1:]
	return err
}

func (s *Static) answer(text string) Result {
	lower := strings.ToLower(text)
	r := s.Fallback
	for _, rule := range s.Rules {
		if strings.Contains(lower, strings.ToLower(rule.Contains)) {
			r = rule.Result
			break
		}
	}
	r.Source = s.Name()
	return Normalize(r)
}
