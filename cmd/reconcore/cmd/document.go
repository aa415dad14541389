package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"document-reconciliation-service/internal/models"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	enqueuePriority int
	suggestLimit    int
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Upload and process documents",
}

var documentUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document",
	Long: `Upload stores a document for later processing. The returned id is
used to enqueue the document and to query match suggestions.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentUpload,
}

var documentEnqueueCmd = &cobra.Command{
	Use:   "enqueue <document-id>",
	Short: "Schedule a document for processing",
	Long: `Enqueue creates a processing job for an uploaded document. A document
can have at most one pending or running job at a time.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentEnqueue,
}

var documentSuggestCmd = &cobra.Command{
	Use:   "suggest <document-id>",
	Short: "Show ranked match candidates for a document",
	Long: `Suggest extracts the document (served from the cache when possible)
and ranks the open transactions against it. Nothing is booked.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentSuggest,
}

func init() {
	rootCmd.AddCommand(documentCmd)
	documentCmd.AddCommand(documentUploadCmd)
	documentCmd.AddCommand(documentEnqueueCmd)
	documentCmd.AddCommand(documentSuggestCmd)

	documentEnqueueCmd.Flags().IntVarP(&enqueuePriority, "priority", "p", 5, "job priority (0-9, higher runs first)")
	documentSuggestCmd.Flags().IntVarP(&suggestLimit, "limit", "n", 5, "maximum number of candidates")

	viper.BindPFlag("priority", documentEnqueueCmd.Flags().Lookup("priority"))
	viper.BindPFlag("limit", documentSuggestCmd.Flags().Lookup("limit"))
}

func runDocumentUpload(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	doc, err := svc.UploadDocument(context.Background(), filepath.Base(args[0]), content)
	if err != nil {
		return err
	}
	fmt.Printf("Document: %s\n", doc.ID)
	return nil
}

func runDocumentEnqueue(cmd *cobra.Command, args []string) error {
	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	job, err := svc.EnqueueDocument(context.Background(), args[0], viper.GetInt("priority"))
	if err != nil {
		return err
	}
	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Priority: %d\n", job.Priority)
	return nil
}

func runDocumentSuggest(cmd *cobra.Command, args []string) error {
	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	candidates, err := svc.MatchSuggestions(context.Background(), args[0], viper.GetInt("limit"))
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No candidates above the minimum score.")
		return nil
	}

	for i, c := range candidates {
		tx := c.Transaction
		fmt.Printf("%d. %.2f%% (%s)  %s  %s  %s\n",
			i+1, c.Confidence*100, c.Band,
			tx.BookingDate.Format("2006-01-02"), models.FormatMinor(tx.AmountMinor), tx.ID)
		if tx.PartnerName != "" {
			fmt.Printf("   %s - %s\n", tx.PartnerName, tx.Description)
		} else {
			fmt.Printf("   %s\n", tx.Description)
		}
	}
	return nil
}
