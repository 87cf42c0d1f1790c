package classify

import (
	"context"
	"fmt"

	"github.com/nhle/applytrack/internal/model"
)

// Provider names accepted by New.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderStatic    = "static"
)

// NeedsAPIKey reports whether the named provider requires an API key.
func NeedsAPIKey(name string) bool {
	switch name {
	case ProviderGemini, ProviderAnthropic, ProviderOpenAI:
		return true
	}
	return false
}

// New selects and builds the configured provider.
func New(ctx context.Context, cfg model.ProviderConfig, apiKey string) (Provider, error) {
	switch cfg.Name {
	case ProviderGemini:
		return NewGemini(ctx, apiKey, cfg.Model, cfg.Timeout)
	case ProviderAnthropic:
		return NewAnthropic(apiKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
	case ProviderOpenAI:
		return NewOpenAI(apiKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
	case ProviderOllama:
		return NewOllama(cfg.Model, cfg.BaseURL, cfg.Timeout)
	case ProviderStatic:
		return NewStatic(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", cfg.Name)
	}
}
