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

var importFormat string

// importCmd ingests one transaction export file.
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a transaction export file",
	Long: `Import detects the format of a transaction export, parses it, and
stores the rows. Re-importing a file is safe: rows already present are
skipped and counted as duplicates.

Supported formats: BANK_CSV, PAYPAL, STRIPE, MOLLIE, DATEV.

Examples:
  reconcore import Konto_1200_140125_093000.csv
  reconcore import paypal_export.csv --format PAYPAL`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importFormat, "format", "f", "", "source format hint (skips auto-detection check)")
	viper.BindPFlag("format", importCmd.Flags().Lookup("format"))
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	importFormat = viper.GetString("format")
	if importFormat != "" && !models.SourceType(importFormat).IsValid() {
		return fmt.Errorf("invalid format '%s'. Valid formats: BANK_CSV, PAYPAL, STRIPE, MOLLIE, DATEV", importFormat)
	}

	info, err := os.Stat(args[0])
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("error accessing file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("expected a file, got a directory: %s", args[0])
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	svc, closer, err := openService()
	if err != nil {
		return err
	}
	defer closer()

	result, err := svc.ImportFile(context.Background(),
		filepath.Base(args[0]), content, models.SourceType(importFormat))
	if err != nil {
		return err
	}

	b := result.Batch
	fmt.Printf("Batch:      %s\n", b.ID)
	fmt.Printf("Source:     %s\n", b.Source)
	fmt.Printf("Rows:       %d\n", b.RowsTotal)
	fmt.Printf("Created:    %d\n", b.Created)
	fmt.Printf("Duplicates: %d\n", b.Duplicates)
	if result.RowErrors != nil {
		fmt.Printf("Row errors: %d\n", result.RowErrors.Len())
		for _, rowErr := range result.RowErrors.Sample(5) {
			fmt.Fprintf(os.Stderr, "  %s\n", rowErr.Message)
		}
	}
	return nil
}
