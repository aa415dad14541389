package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies a document after extraction
type DocumentType string

const (
	DocTypeInvoice DocumentType = "invoice"
	DocTypeReceipt DocumentType = "receipt"
	DocTypeUnknown DocumentType = "unknown"
)

// Document is an uploaded file awaiting or having undergone enrichment.
// DocType stays unknown until extraction has run.
type Document struct {
	ID            string       `json:"id"`
	Filename      string       `json:"filename"`
	Content       []byte       `json:"-"`
	UploadedAt    time.Time    `json:"uploaded_at"`
	DocType       DocumentType `json:"doc_type"`
	ImportBatchID string       `json:"import_batch_id,omitempty"`

	// MatchedTransactionID is set only after a successful match; the booking
	// engine is its sole writer.
	MatchedTransactionID string `json:"matched_transaction_id,omitempty"`
}

// NewDocument creates a Document with a fresh id and upload timestamp
func NewDocument(filename string, content []byte) *Document {
	return &Document{
		ID:         uuid.New().String(),
		Filename:   filename,
		Content:    content,
		UploadedAt: time.Now().UTC(),
		DocType:    DocTypeUnknown,
	}
}

// Validate performs basic validation on the Document
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	if strings.TrimSpace(d.Filename) == "" {
		return fmt.Errorf("document filename cannot be empty")
	}
	if len(d.Content) == 0 {
		return fmt.Errorf("document content cannot be empty")
	}
	return nil
}

// String returns a string representation of the Document
func (d *Document) String() string {
	return fmt.Sprintf("Document{ID: %s, Filename: %s, Type: %s}", d.ID, d.Filename, d.DocType)
}

// JobStatus represents the lifecycle state of a processing job
type JobStatus string

const (
	// JobPending means the job is waiting to be claimed by a worker
	JobPending JobStatus = "pending"
	// JobProcessing means a worker has claimed the job
	JobProcessing JobStatus = "processing"
	// JobCompleted means the job finished successfully (terminal)
	JobCompleted JobStatus = "completed"
	// JobFailed means the job exhausted its retries or was cancelled (terminal)
	JobFailed JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Priority bounds for processing jobs. Higher priorities are claimed first.
const (
	MinPriority = 0
	MaxPriority = 9
)

// ProcessingJob is one queue entry driving a document through
// extraction, matching, and booking. A document has at most one job in
// pending or processing state at a time.
type ProcessingJob struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Priority   int       `json:"priority"`
	Status     JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// HeartbeatAt is refreshed by the owning worker; the visibility-timeout
	// sweep uses it to detect abandoned jobs.
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`

	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`
	Cancelled  bool   `json:"cancelled"`
}

// NewProcessingJob creates a pending job for a document
func NewProcessingJob(documentID string, priority, maxRetries int) *ProcessingJob {
	return &ProcessingJob{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		Priority:   priority,
		Status:     JobPending,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
}

// Validate performs basic validation on the ProcessingJob
func (j *ProcessingJob) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if strings.TrimSpace(j.DocumentID) == "" {
		return fmt.Errorf("job document ID cannot be empty")
	}
	if j.Priority < MinPriority || j.Priority > MaxPriority {
		return fmt.Errorf("job priority must be between %d and %d: %d", MinPriority, MaxPriority, j.Priority)
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("job max retries cannot be negative: %d", j.MaxRetries)
	}
	return nil
}

// String returns a string representation of the ProcessingJob
func (j *ProcessingJob) String() string {
	return fmt.Sprintf("ProcessingJob{ID: %s, Document: %s, Priority: %d, Status: %s, Retries: %d/%d}",
		j.ID, j.DocumentID, j.Priority, j.Status, j.RetryCount, j.MaxRetries)
}

// CacheEntry is a memoized response from an external enrichment call.
// The key is a pure function of the semantically relevant request fields, so
// retried jobs reuse one response and the external capability is invoked at
// most once per distinct input.
type CacheEntry struct {
	Key       string     `json:"key"`
	Service   string     `json:"service"`
	Payload   []byte     `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	HitCount  int64      `json:"hit_count"`
}

// Expired reports whether the entry is logically absent at the given instant
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Booking is the final accounting record. Once created it is immutable;
// corrections are new bookings, never in-place edits.
type Booking struct {
	ID          string    `json:"id"`
	BookingDate time.Time `json:"booking_date"`
	AmountMinor int64     `json:"amount_minor"`

	// DebitAccount and CreditAccount are SKR04-style account codes.
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`

	Description string  `json:"description,omitempty"`
	TaxKey      string  `json:"tax_key,omitempty"`
	Confidence  float64 `json:"confidence"`
	AutoBooked  bool    `json:"auto_booked"`

	DocumentID    string `json:"document_id"`
	TransactionID string `json:"transaction_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewBooking creates a Booking with a fresh id and creation timestamp
func NewBooking(documentID string, bookingDate time.Time, amountMinor int64, debit, credit string) *Booking {
	return &Booking{
		ID:            uuid.New().String(),
		DocumentID:    documentID,
		BookingDate:   bookingDate,
		AmountMinor:   amountMinor,
		DebitAccount:  debit,
		CreditAccount: credit,
		CreatedAt:     time.Now().UTC(),
	}
}

// Validate performs basic validation on the Booking
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("booking ID cannot be empty")
	}
	if strings.TrimSpace(b.DocumentID) == "" {
		return fmt.Errorf("booking document ID cannot be empty")
	}
	if b.BookingDate.IsZero() {
		return fmt.Errorf("booking date cannot be zero")
	}
	if b.AmountMinor == 0 {
		return fmt.Errorf("booking amount cannot be zero")
	}
	if strings.TrimSpace(b.DebitAccount) == "" || strings.TrimSpace(b.CreditAccount) == "" {
		return fmt.Errorf("booking requires both debit and credit accounts")
	}
	if b.Confidence < 0.0 || b.Confidence > 1.0 {
		return fmt.Errorf("booking confidence must be between 0.0 and 1.0: %f", b.Confidence)
	}
	return nil
}

// String returns a string representation of the Booking
func (b *Booking) String() string {
	return fmt.Sprintf("Booking{ID: %s, Date: %s, Amount: %s, %s/%s, AutoBooked: %t}",
		b.ID, b.BookingDate.Format("2006-01-02"), FormatMinor(b.AmountMinor),
		b.DebitAccount, b.CreditAccount, b.AutoBooked)
}

// MatchSignal names one contribution to a candidate's confidence score
type MatchSignal string

const (
	SignalAmount    MatchSignal = "amount_match"
	SignalDate      MatchSignal = "date_proximity"
	SignalReference MatchSignal = "reference_match"
	SignalVendor    MatchSignal = "vendor_similarity"
)

// MatchCandidate pairs a document's extracted fields with one transaction
// and a computed confidence. Candidates are ephemeral: they exist for the
// duration of the matching decision and are never persisted.
type MatchCandidate struct {
	Transaction *Transaction            `json:"transaction"`
	Confidence  float64                 `json:"confidence"`
	Signals     map[MatchSignal]float64 `json:"signals"`
	Band        string                  `json:"band"`
}

// ConfidenceBand maps a raw confidence to its descriptive band. The bands
// are reporting sugar only; the decision engine uses the raw score.
func ConfidenceBand(confidence float64) string {
	switch {
	case confidence >= 0.95:
		return "excellent"
	case confidence >= 0.85:
		return "good"
	case confidence >= 0.70:
		return "fair"
	default:
		return "uncertain"
	}
}
