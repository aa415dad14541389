package cmd

import (
	"context"
	"fmt"

	"document-reconciliation-service/internal/models"

	"github.com/spf13/cobra"
)

// bookCmd confirms a booking on human authority.
var bookCmd = &cobra.Command{
	Use:   "book <document-id> <transaction-id>",
	Short: "Book a document against a transaction",
	Long: `Book records a booking for a document and transaction pair. The pair
does not need to be the engine's best match: use it to confirm a reviewed
suggestion or to override the automatic choice. The thresholds do not
apply; the stored confidence is the computed score for the chosen pair.`,
	Args: cobra.ExactArgs(2),
	RunE: runBook,
}

func init() {
	rootCmd.AddCommand(bookCmd)
}

func runBook(cmd *cobra.Command, args []string) error {
	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	b, err := svc.ConfirmBooking(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Booking:    %s\n", b.ID)
	fmt.Printf("Amount:     %s\n", models.FormatMinor(b.AmountMinor))
	fmt.Printf("Debit:      %s\n", b.DebitAccount)
	fmt.Printf("Credit:     %s\n", b.CreditAccount)
	if b.TaxKey != "" {
		fmt.Printf("Tax key:    %s\n", b.TaxKey)
	}
	fmt.Printf("Confidence: %.2f%%\n", b.Confidence*100)
	return nil
}
