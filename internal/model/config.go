package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageConfig selects the database backing the progress store.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// IMAPConfig holds the mail server settings. Username and password are
// per user and live in the system keyring.
type IMAPConfig struct {
	Host    string `mapstructure:"host" yaml:"host"`
	Port    string `mapstructure:"port" yaml:"port"`
	TLS     bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`
}

// ProviderConfig selects and tunes the classification provider.
type ProviderConfig struct {
	// Name is one of "gemini", "anthropic", "openai", "ollama", "static".
	Name string `mapstructure:"name" yaml:"name"`

	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// RequestsPerMinute bounds provider calls per worker process.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`

	// BatchSize > 1 groups cache-missed messages into one provider call.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// Timeout bounds a single provider call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// IngestConfig tunes the run orchestrator.
type IngestConfig struct {
	// Cooldown is the minimum interval between two successful runs.
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown"`

	// Lookback bounds how far back a fresh run enumerates messages.
	Lookback time.Duration `mapstructure:"lookback" yaml:"lookback"`

	// PatternThreshold is the confidence a pattern must exceed to be used.
	PatternThreshold float64 `mapstructure:"pattern_threshold" yaml:"pattern_threshold"`

	// PatternsFile optionally extends the built-in pattern table.
	PatternsFile string `mapstructure:"patterns_file" yaml:"patterns_file"`
}

// RetryConfig tunes the provider failure policy.
type RetryConfig struct {
	DailyAbortThreshold time.Duration `mapstructure:"daily_abort_threshold" yaml:"daily_abort_threshold"`
	DailyResetHourUTC   int           `mapstructure:"daily_reset_hour_utc" yaml:"daily_reset_hour_utc"`
	MaxAttempts         int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffBase         time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap          time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
}

// WorkerConfig sizes the task queue.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`

	// File, when set, receives JSON logs in addition to stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Ingest   IngestConfig   `mapstructure:"ingest" yaml:"ingest"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Worker   WorkerConfig   `mapstructure:"worker" yaml:"worker"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// envPrefix prefixes environment overrides, e.g. APPLYTRACK_PROVIDER_NAME.
const envPrefix = "APPLYTRACK"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/applytrack/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "applytrack", "config.yaml")
}

// DefaultDatabasePath returns the default SQLite database location.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "applytrack.db")
	}
	return filepath.Join(home, ".config", "applytrack", "applytrack.db")
}

// defaults maps every configuration key to its default value. Registering
// each key with viper also makes it visible to environment overrides.
func defaults() map[string]any {
	return map[string]any{
		"storage.driver": "sqlite",
		"storage.dsn":    DefaultDatabasePath(),

		"imap.host":    "imap.gmail.com",
		"imap.port":    "993",
		"imap.tls":     true,
		"imap.mailbox": "INBOX",

		"provider.name":                "gemini",
		"provider.model":               "",
		"provider.base_url":            "",
		"provider.requests_per_minute": 10,
		"provider.batch_size":          1,
		"provider.timeout":             "30s",

		"ingest.cooldown":          "1h",
		"ingest.lookback":          "2160h",
		"ingest.pattern_threshold": 0.85,
		"ingest.patterns_file":     "",

		"retry.daily_abort_threshold": "1h",
		"retry.daily_reset_hour_utc":  0,
		"retry.max_attempts":          5,
		"retry.backoff_base":          "5s",
		"retry.backoff_cap":           "5m",

		"worker.concurrency": 2,

		"log.level": "info",
		"log.file":  "",
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, val := range defaults() {
		v.SetDefault(key, val)
	}
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error: defaults and environment overrides apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage.dsn is required")
	}
	if c.Provider.BatchSize < 1 {
		return errors.New("provider.batch_size must be >= 1")
	}
	if c.Ingest.PatternThreshold < 0 || c.Ingest.PatternThreshold > 1 {
		return errors.New("ingest.pattern_threshold must be within [0, 1]")
	}
	if c.Retry.DailyResetHourUTC < 0 || c.Retry.DailyResetHourUTC > 23 {
		return errors.New("retry.daily_reset_hour_utc must be within [0, 23]")
	}
	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be >= 1")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("storage", cfg.Storage)
	v.Set("imap", cfg.IMAP)
	v.Set("provider", cfg.Provider)
	v.Set("ingest", cfg.Ingest)
	v.Set("retry", cfg.Retry)
	v.Set("worker", cfg.Worker)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
