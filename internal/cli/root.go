// Package cli provides the command-line interface for applytrack.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nhle/applytrack/internal/logging"
	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	verbose    bool

	// Loaded once per invocation by PersistentPreRunE.
	cfg        *model.AppConfig
	logger     *slog.Logger
	st         *store.SQLStore
	logCleanup func() error
)

// noStore lists commands that only need configuration.
var noStore = map[string]bool{
	"version":  true,
	"help":     true,
	"patterns": true,
}

var rootCmd = &cobra.Command{
	Use:   "applytrack",
	Short: "Track job applications from your inbox",
	Long: `applytrack reads a mailbox over IMAP, classifies every job-related
message (applied, rejection, interview, offer, ...) and keeps the results
in a local database.

Runs are resumable: a run stopped by a provider quota, a crash or Ctrl-C
continues from its last checkpoint, and no message is stored twice.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, logCleanup, err = logging.Setup(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		if noStore[cmd.Name()] {
			return nil
		}
		st, err = openStore(cmd.Context())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			if err := st.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute runs the root command with ctx, which is cancelled on shutdown
// signals.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(patternsCmd)
}

func openStore(ctx context.Context) (*store.SQLStore, error) {
	if cfg.Storage.Driver == store.DriverSQLite && cfg.Storage.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	s, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// configDir is where the config file, database and keyring fallback live.
func configDir() string {
	return filepath.Dir(configPath)
}
