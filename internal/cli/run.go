package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nhle/applytrack/internal/ingest"
)

// filterFlags are the enumeration flags shared by run, worker and watch.
type filterFlags struct {
	since       string
	text        string
	mailbox     string
	incremental bool
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.since, "since", "", "only messages since a date (2006-01-02) or duration (72h)")
	fs.StringVar(&f.text, "text", "", "only messages containing this text")
	fs.StringVar(&f.mailbox, "mailbox", "", "mailbox to read (default from config)")
	fs.BoolVar(&f.incremental, "incremental", false, "start at the last successful run")
}

func (f *filterFlags) filters() (ingest.Filters, error) {
	since, err := parseSince(f.since)
	if err != nil {
		return ingest.Filters{}, err
	}
	return ingest.Filters{
		Since:       since,
		Text:        f.text,
		Mailbox:     f.mailbox,
		Incremental: f.incremental,
	}, nil
}

var runFilters filterFlags

var runCmd = &cobra.Command{
	Use:   "run <user-id>",
	Short: "Ingest and classify a user's mail in the foreground",
	Long: `Run one ingestion for a user and wait for it to finish.

A run interrupted earlier (Ctrl-C, crash, daily provider quota) resumes
from its checkpoint. A run finished successfully less than the cooldown
ago is refused.

Examples:
  applytrack run alice
  applytrack run alice --incremental
  applytrack run alice --since 2026-01-01 --text "application"`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runFilters.register(runCmd.Flags())
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	userID := args[0]

	filters, err := runFilters.filters()
	if err != nil {
		return err
	}
	creds, err := openCredentials()
	if err != nil {
		return err
	}
	imap, err := creds.IMAP(ctx, userID)
	if err != nil {
		return fmt.Errorf("mail login for %s: %w", userID, err)
	}
	orch, err := newOrchestrator(ctx, creds)
	if err != nil {
		return err
	}

	res, err := orch.Run(ctx, ingest.Request{
		UserID:        userID,
		Credentials:   imap,
		Filters:       filters,
		CorrelationID: "cli",
	})
	printResult(cmd, res)
	return err
}

func printResult(cmd *cobra.Command, res ingest.Result) {
	out := cmd.OutOrStdout()
	switch res.Status {
	case ingest.StatusRateLimited:
		fmt.Fprintf(out, "Cooling down, next run allowed at %s\n", res.NextAllowedAt.Local().Format("2006-01-02 15:04"))
		return
	case ingest.StatusConflict:
		fmt.Fprintln(out, "Another worker is running this user's ingestion")
		return
	}

	fmt.Fprintf(out, "Run %s: %d stored, %d skipped, %d failed of %d messages\n",
		res.Status, res.Processed, res.Skipped, res.Failed, res.Total)
}
