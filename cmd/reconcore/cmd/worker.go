package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"document-reconciliation-service/cmd/reconcore/config"

	"github.com/spf13/cobra"
)

// workerCmd runs the processing worker pool in the foreground.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the document processing workers",
	Long: `Worker drains the processing queue: each claimed job is extracted,
matched, and run through the booking decision. The pool also reclaims
jobs from crashed workers and prunes expired cache entries. It runs
until interrupted.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, svc)

	fmt.Fprintln(os.Stderr, "Workers running. Press Ctrl+C to stop.")
	return svc.RunWorkers(ctx)
}

// sweepLoop prunes expired cache entries while the workers run.
func sweepLoop(ctx context.Context, svc sweeper) {
	ticker := time.NewTicker(config.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := svc.SweepCache(ctx); err == nil && n > 0 {
				fmt.Fprintf(os.Stderr, "Pruned %d expired cache entries.\n", n)
			}
		}
	}
}

type sweeper interface {
	SweepCache(ctx context.Context) (int, error)
}
