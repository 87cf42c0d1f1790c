// Package logging builds the process logger: text on stderr, plus JSON to
// a file when one is configured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/nhle/applytrack/internal/model"
)

// ParseLevel maps a config level name to a slog level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// Setup creates the logger described by cfg and returns it with a cleanup
// function that closes the log file. When the file cannot be opened the
// logger falls back to stderr only.
func Setup(cfg model.LogConfig, stderr io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	if cfg.File == "" {
		return slog.New(textHandler), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		slog.New(textHandler).Error("creating log directory, using stderr only", "error", err)
		return slog.New(textHandler), func() error { return nil }, nil
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.New(textHandler).Error("opening log file, using stderr only", "error", err, "file", cfg.File)
		return slog.New(textHandler), func() error { return nil }, nil
	}

	return NewWithWriters(stderr, file, level), file.Close, nil
}

// NewWithWriters fans one logger out to a text writer and a JSON writer.
func NewWithWriters(text, jsonOut io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(text, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(jsonOut, &slog.HandlerOptions{Level: level}),
	))
}
