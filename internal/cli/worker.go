package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	workerInterval time.Duration
	workerFilters  filterFlags
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued ingestions in the background",
	Long: `Start a worker pool that resumes runs left unfinished by a previous
worker and, with --every, triggers a run for every registered user on a
schedule. Stops cleanly on SIGINT/SIGTERM; unfinished runs resume on the
next start.

Examples:
  applytrack worker
  applytrack worker --every 1h --incremental`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().DurationVar(&workerInterval, "every", 0, "trigger runs for all users at this interval (0 disables)")
	workerFilters.register(workerCmd.Flags())
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filters, err := workerFilters.filters()
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

	n, err := svc.Redeliver(ctx)
	if err != nil {
		return err
	}
	logger.Info("worker started",
		"concurrency", cfg.Worker.Concurrency,
		"redelivered", n,
		"every", workerInterval,
	)

	if workerInterval <= 0 {
		<-ctx.Done()
		logger.Info("worker stopping")
		return nil
	}

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()
	for {
		if n, err := svc.StartAll(ctx, filters); err != nil {
			logger.Error("scheduling runs", "error", err)
		} else {
			logger.Info("scheduled runs", "started", n)
		}

		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}
