package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/applytrack/internal/ingest"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <user-id>",
	Short: "Show the state of a user's run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := ingest.StatusOf(cmd.Context(), st, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Fprintf(out, "Status:    %s", status.Status)
	if status.Outcome != "" {
		fmt.Fprintf(out, " (%s)", status.Outcome)
	}
	fmt.Fprintf(out, "\nProgress:  %d / %d\n", status.ProcessedCount, status.TotalCount)
	if status.UpdatedAt != nil {
		fmt.Fprintf(out, "Updated:   %s\n", status.UpdatedAt.Local().Format(time.DateTime))
	}
	if status.CorrelationID != "" {
		fmt.Fprintf(out, "Run:       %s\n", status.CorrelationID)
	}
	if status.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", status.ErrorMessage)
	}
	return nil
}
