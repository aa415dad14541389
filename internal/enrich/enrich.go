// Package enrich defines the capability interfaces for external document
// enrichment: field extraction and account suggestion.
//
// The interfaces are implemented by whatever backs the deployment (an OCR
// pipeline, an LLM, a rules engine); the processing pipeline only depends
// on the contracts here. Implementations classify their failures as
// transient or fatal via the extraction error codes, which drives the
// queue's retry behavior.
package enrich

import (
	"context"
	"encoding/json"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"
)

// ExtractedFields is what an Extractor reads out of a document. Zero
// values mean "not found"; the matcher treats missing fields as absent
// signals rather than mismatches.
type ExtractedFields struct {
	DocType       models.DocumentType `json:"doc_type"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	IssueDate     time.Time           `json:"issue_date,omitempty"`
	AmountMinor   int64               `json:"amount_minor"`
	TaxMinor      int64               `json:"tax_minor,omitempty"`
	VendorName    string              `json:"vendor_name,omitempty"`
	Reference     string              `json:"reference,omitempty"`

	// PaymentMethod hints at the settlement channel (paypal, stripe,
	// mollie, bank) when the document states one.
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Marshal encodes the fields for cache storage.
func (f *ExtractedFields) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFields decodes a cached extraction payload.
func UnmarshalFields(payload []byte) (*ExtractedFields, error) {
	var f ExtractedFields
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, errors.ExtractionError(errors.CodeExtractionFatal, "", err).
			WithSuggestion("the cached payload is corrupt; purge the cache entry")
	}
	return &f, nil
}

// Extractor reads structured fields out of a raw document.
type Extractor interface {
	// Name identifies the capability for cache key derivation.
	Name() string

	// Extract pulls fields from the document. Errors should carry
	// CodeExtractionTransient when a retry may succeed (network, rate
	// limit) and CodeExtractionFatal when it cannot (unreadable file).
	Extract(ctx context.Context, doc *models.Document) (*ExtractedFields, error)
}

// AccountSuggestion is a Suggester's proposal for the two booking sides.
type AccountSuggestion struct {
	DebitAccount  string  `json:"debit_account"`
	CreditAccount string  `json:"credit_account"`
	TaxKey        string  `json:"tax_key,omitempty"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale,omitempty"`
}

// Suggester proposes ledger accounts for an enriched document.
type Suggester interface {
	Name() string
	SuggestAccounts(ctx context.Context, fields *ExtractedFields) (*AccountSuggestion, error)
}
