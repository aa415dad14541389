package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and control processing jobs",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a processing job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a processing job",
	Long: `Cancel stops a job. A job that has not started fails immediately; a
running job is flagged and its worker stops at the next stage boundary.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobCancel,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobStatusCmd)
	jobCmd.AddCommand(jobCancelCmd)
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	job, err := svc.JobStatus(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Document: %s\n", job.DocumentID)
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Retries:  %d/%d\n", job.RetryCount, job.MaxRetries)
	if job.LastError != "" {
		fmt.Printf("Error:    %s\n", job.LastError)
	}
	if job.Cancelled {
		fmt.Println("Cancelled: yes")
	}
	return nil
}

func runJobCancel(cmd *cobra.Command, args []string) error {
	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	if err := svc.CancelJob(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Println("Cancellation requested.")
	return nil
}
