package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/applytrack/internal/credential"
	"github.com/nhle/applytrack/internal/ingest"
	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/store"
	"github.com/nhle/applytrack/internal/ui/watch"
)

var (
	watchInterval time.Duration
	watchFilters  filterFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch <user-id>",
	Short: "Follow a user's run in a terminal view",
	Long: `Open a live view of a user's run: progress, outcome and the latest
classified messages. Press s to start a run in this process.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "refresh", 2*time.Second, "refresh interval")
	watchFilters.register(watchCmd.Flags())
}

// watchBackend adapts the service and store to the watch view.
type watchBackend struct {
	svc     *ingest.Service
	store   store.Store
	creds   *credential.Store
	filters ingest.Filters
}

func (b watchBackend) Status(ctx context.Context, userID string) (ingest.RunStatus, error) {
	return b.svc.GetStatus(ctx, userID)
}

func (b watchBackend) Start(ctx context.Context, userID string) (ingest.StartResult, error) {
	imap, err := b.creds.IMAP(ctx, userID)
	if err != nil {
		return ingest.StartResult{}, err
	}
	return b.svc.StartRun(ctx, userID, imap, b.filters)
}

func (b watchBackend) Records(ctx context.Context, userID string) ([]model.MailRecord, error) {
	return b.store.ListMailRecords(ctx, userID)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filters, err := watchFilters.filters()
	if err != nil {
		return err
	}
	creds, err := openCredentials()
	if err != nil {
		return err
	}
	svc, pool, err := newService(ctx, creds)
	if err != nil {
		return err
	}
	defer pool.Stop()

	return watch.Run(watchBackend{
		svc:     svc,
		store:   st,
		creds:   creds,
		filters: filters,
	}, args[0], watchInterval)
}
