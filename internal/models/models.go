// Package models defines the canonical data model for the reconciliation
// core: normalized transactions, uploaded documents, processing jobs,
// extraction cache entries, and immutable bookings.
//
// Amounts are carried everywhere as signed int64 minor currency units
// (cents). Parsing from locale-specific decimal strings happens once, at the
// import boundary, via the normalize package; no float arithmetic ever
// touches a monetary value.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceType identifies the system a transaction was imported from
type SourceType string

const (
	// SourceBankCSV is a bank statement export (semicolon CSV, German locale)
	SourceBankCSV SourceType = "BANK_CSV"
	// SourcePayPal is a PayPal activity export
	SourcePayPal SourceType = "PAYPAL"
	// SourceStripe is a Stripe balance/payout export
	SourceStripe SourceType = "STRIPE"
	// SourceMollie is a Mollie settlement export
	SourceMollie SourceType = "MOLLIE"
	// SourceDATEV is a DATEV ledger export
	SourceDATEV SourceType = "DATEV"
)

// String returns the string representation of SourceType
func (s SourceType) String() string {
	return string(s)
}

// IsValid checks if the source type is one of the recognized formats
func (s SourceType) IsValid() bool {
	switch s {
	case SourceBankCSV, SourcePayPal, SourceStripe, SourceMollie, SourceDATEV:
		return true
	}
	return false
}

// ParseSourceType parses a source type from a string, accepting the
// hint spellings callers commonly use.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BANK_CSV", "BANK", "BANKCSV":
		return SourceBankCSV, nil
	case "PAYPAL":
		return SourcePayPal, nil
	case "STRIPE":
		return SourceStripe, nil
	case "MOLLIE":
		return SourceMollie, nil
	case "DATEV", "LEDGER":
		return SourceDATEV, nil
	default:
		return "", fmt.Errorf("invalid source type '%s'", s)
	}
}

// Transaction is a canonical normalized financial movement, independent of
// the source format it was imported from.
type Transaction struct {
	ID          string     `json:"id"`
	BatchID     string     `json:"batch_id"`
	Source      SourceType `json:"source"`
	BookingDate time.Time  `json:"booking_date"`

	// AmountMinor is the signed amount in minor currency units (cents).
	AmountMinor int64 `json:"amount_minor"`

	Description   string `json:"description"`
	CounterAcct   string `json:"counter_account,omitempty"`
	PartnerName   string `json:"partner_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`

	// RawData preserves the source row verbatim for audit. Immutable once
	// stored.
	RawData json.RawMessage `json:"raw_data"`

	// DedupKey is derived from the normalized row content; a unique index on
	// it makes re-imports idempotent.
	DedupKey string `json:"dedup_key"`

	Processed        bool   `json:"processed"`
	MatchedBookingID string `json:"matched_booking_id,omitempty"`

	ImportedAt time.Time `json:"imported_at"`
}

// NewTransaction creates a Transaction with a fresh id and import timestamp
func NewTransaction(source SourceType, bookingDate time.Time, amountMinor int64, description string) *Transaction {
	return &Transaction{
		ID:          uuid.New().String(),
		Source:      source,
		BookingDate: bookingDate,
		AmountMinor: amountMinor,
		Description: description,
		ImportedAt:  time.Now().UTC(),
	}
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if !t.Source.IsValid() {
		return fmt.Errorf("invalid source type: %s", t.Source)
	}

	if t.AmountMinor == 0 {
		return fmt.Errorf("transaction amount cannot be zero")
	}

	if t.BookingDate.IsZero() {
		return fmt.Errorf("transaction booking date cannot be zero")
	}

	if t.DedupKey == "" {
		return fmt.Errorf("transaction dedup key cannot be empty")
	}

	return nil
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Source: %s, Amount: %s, Date: %s}",
		t.ID, t.Source, FormatMinor(t.AmountMinor), t.BookingDate.Format("2006-01-02"))
}

// IsDebit returns true if the transaction represents an outgoing amount
func (t *Transaction) IsDebit() bool {
	return t.AmountMinor < 0
}

// IsCredit returns true if the transaction represents an incoming amount
func (t *Transaction) IsCredit() bool {
	return t.AmountMinor > 0
}

// AbsAmountMinor returns the absolute amount in minor units
func (t *Transaction) AbsAmountMinor() int64 {
	if t.AmountMinor < 0 {
		return -t.AmountMinor
	}
	return t.AmountMinor
}

// ImportBatch groups the transactions created by one import of one file
type ImportBatch struct {
	ID         string          `json:"id"`
	Source     SourceType      `json:"source"`
	SourceFile string          `json:"source_file"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	ImportedAt time.Time       `json:"imported_at"`

	RowsTotal  int `json:"rows_total"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	RowErrors  int `json:"row_errors"`
}

// NewImportBatch creates an ImportBatch for a source file
func NewImportBatch(source SourceType, sourceFile string) *ImportBatch {
	return &ImportBatch{
		ID:         uuid.New().String(),
		Source:     source,
		SourceFile: sourceFile,
		ImportedAt: time.Now().UTC(),
	}
}

// Validate performs basic validation on the ImportBatch
func (b *ImportBatch) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("batch ID cannot be empty")
	}
	if !b.Source.IsValid() {
		return fmt.Errorf("invalid source type: %s", b.Source)
	}
	if strings.TrimSpace(b.SourceFile) == "" {
		return fmt.Errorf("batch source file cannot be empty")
	}
	return nil
}

// String returns a string representation of the ImportBatch
func (b *ImportBatch) String() string {
	return fmt.Sprintf("ImportBatch{ID: %s, Source: %s, File: %s, Created: %d, Duplicates: %d}",
		b.ID, b.Source, b.SourceFile, b.Created, b.Duplicates)
}

// FormatMinor renders a minor-unit amount as a decimal string ("-1234" ->
// "-12.34"). Display only; arithmetic stays on int64.
func FormatMinor(amountMinor int64) string {
	return decimal.New(amountMinor, -2).StringFixed(2)
}
