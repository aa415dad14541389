package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// sweepCmd runs the maintenance passes once and exits. It exists for
// deployments that prefer cron over a long-running worker.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Prune expired cache entries and reclaim stale jobs",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	ctx := context.Background()

	pruned, err := svc.SweepCache(ctx)
	if err != nil {
		return err
	}
	released, err := svc.ReleaseStaleJobs(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Cache entries pruned: %d\n", pruned)
	fmt.Printf("Jobs reclaimed:       %d\n", released)
	return nil
}
