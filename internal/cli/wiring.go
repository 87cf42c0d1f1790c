package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nhle/applytrack/internal/classify"
	"github.com/nhle/applytrack/internal/credential"
	"github.com/nhle/applytrack/internal/ingest"
	"github.com/nhle/applytrack/internal/queue"
	"github.com/nhle/applytrack/internal/ratelimit"
	"github.com/nhle/applytrack/internal/source/email"
)

// apiKeyEnv returns the environment variable that overrides the keyring
// for a provider's API key, e.g. APPLYTRACK_GEMINI_API_KEY.
func apiKeyEnv(provider string) string {
	return "APPLYTRACK_" + strings.ToUpper(provider) + "_API_KEY"
}

func openCredentials() (*credential.Store, error) {
	return credential.Open(configDir())
}

// providerAPIKey looks up the configured provider's key in the environment,
// then in the keyring.
func providerAPIKey(creds *credential.Store) (string, error) {
	name := cfg.Provider.Name
	if !classify.NeedsAPIKey(name) {
		return "", nil
	}
	if key := os.Getenv(apiKeyEnv(name)); key != "" {
		return key, nil
	}
	key, err := creds.APIKey(name)
	if err != nil {
		return "", fmt.Errorf("no API key for %s: run `applytrack login` or set %s: %w", name, apiKeyEnv(name), err)
	}
	return key, nil
}

func patternCache() (*classify.PatternCache, error) {
	var extra []classify.Pattern
	if cfg.Ingest.PatternsFile != "" {
		var err error
		extra, err = classify.LoadPatterns(cfg.Ingest.PatternsFile)
		if err != nil {
			return nil, err
		}
	}
	return classify.NewPatternCache(cfg.Ingest.PatternThreshold, extra...), nil
}

// newOrchestrator wires the configured provider, pattern table, limiter and
// IMAP source into an orchestrator. One limiter serves every worker of the
// process.
func newOrchestrator(ctx context.Context, creds *credential.Store) (*ingest.Orchestrator, error) {
	apiKey, err := providerAPIKey(creds)
	if err != nil {
		return nil, err
	}
	provider, err := classify.New(ctx, cfg.Provider, apiKey)
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}
	patterns, err := patternCache()
	if err != nil {
		return nil, err
	}

	return ingest.New(st, email.NewFactory(cfg.IMAP, logger), provider,
		ingest.WithConfig(ingest.ConfigFrom(cfg)),
		ingest.WithPatterns(patterns),
		ingest.WithLimiter(ratelimit.New(cfg.Provider.RequestsPerMinute)),
		ingest.WithRetry(ratelimit.NewClassifier(cfg.Retry)),
		ingest.WithLogger(logger),
	), nil
}

// newService starts a worker pool and returns the service over it. The
// caller stops the pool.
func newService(ctx context.Context, creds *credential.Store) (*ingest.Service, *queue.Pool, error) {
	orch, err := newOrchestrator(ctx, creds)
	if err != nil {
		return nil, nil, err
	}

	pool := queue.New(cfg.Worker.Concurrency, 64, logger)
	pool.Start(ctx)
	return ingest.NewService(orch, pool, st, creds.IMAP), pool, nil
}

// parseSince accepts a date (2006-01-02) or a duration back from now (72h).
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since must be a date (2006-01-02) or a duration (72h): %q", s)
	}
	return time.Now().Add(-d), nil
}
