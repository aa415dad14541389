// Package booking decides what happens after matching: book
// automatically, queue for review, or hand off to manual entry. It owns
// the only code path that writes Booking records.
package booking

import (
	"context"
	"strconv"

	"document-reconciliation-service/internal/enrich"
	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/store"
	"document-reconciliation-service/pkg/errors"
	"document-reconciliation-service/pkg/logger"
)

// Outcome is the result of running the decision engine for one document.
type Outcome struct {
	Decision  Decision               `json:"decision"`
	Booking   *models.Booking        `json:"booking,omitempty"`
	Candidate *models.MatchCandidate `json:"candidate,omitempty"`

	// AlreadyBooked is set when the document had a booking before this
	// run; the engine then changes nothing.
	AlreadyBooked bool `json:"already_booked"`
}

// Engine applies the booking decision and writes the resulting records.
type Engine struct {
	store      *store.Store
	suggester  enrich.Suggester
	thresholds Thresholds
	log        logger.Logger
}

// NewEngine creates an Engine. The suggester may be nil; the keyword
// fallback then covers expense account selection.
func NewEngine(s *store.Store, suggester enrich.Suggester, thresholds Thresholds) (*Engine, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "thresholds", thresholds, err)
	}
	return &Engine{
		store:      s,
		suggester:  suggester,
		thresholds: thresholds,
		log:        logger.WithComponent("booking"),
	}, nil
}

// Process runs the decision for a document given its best match. A nil
// fields means extraction failed; a nil best means no candidate cleared
// the minimum score. Bookings are only written for auto-book decisions;
// review and manual change no state.
//
// Re-running Process for an already-booked document is a logged no-op,
// so retried jobs cannot double-book.
func (e *Engine) Process(ctx context.Context, doc *models.Document, fields *enrich.ExtractedFields, best *models.MatchCandidate, ambiguous bool) (*Outcome, error) {
	existing, err := e.store.GetBookingByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		e.log.WithField("document_id", doc.ID).
			WithField("booking_id", existing.ID).
			Warn("document already booked, skipping")
		return &Outcome{Decision: DecisionAutoBook, Booking: existing, AlreadyBooked: true}, nil
	}

	confidence := 0.0
	if best != nil {
		confidence = best.Confidence
	}
	decision := Decide(confidence, ambiguous, fields == nil, e.thresholds)

	outcome := &Outcome{Decision: decision, Candidate: best}
	if decision != DecisionAutoBook {
		e.log.WithField("document_id", doc.ID).
			WithField("decision", string(decision)).
			WithField("confidence", confidence).
			Info("match needs human attention")
		return outcome, nil
	}

	b, err := e.createBooking(ctx, doc, fields, best.Transaction, confidence, true)
	if err != nil {
		return nil, err
	}
	outcome.Booking = b
	return outcome, nil
}

// Confirm books a document against a transaction on human authority,
// bypassing the thresholds. It is the write path behind booking
// confirmation and override.
func (e *Engine) Confirm(ctx context.Context, doc *models.Document, fields *enrich.ExtractedFields, tx *models.Transaction, confidence float64) (*models.Booking, error) {
	existing, err := e.store.GetBookingByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.BookingError(errors.CodeDuplicateBooking, doc.ID, nil).
			WithSuggestion("the document already has a booking; corrections are new bookings on a new document")
	}
	return e.createBooking(ctx, doc, fields, tx, confidence, false)
}

func (e *Engine) createBooking(ctx context.Context, doc *models.Document, fields *enrich.ExtractedFields, tx *models.Transaction, confidence float64, auto bool) (*models.Booking, error) {
	debit, credit, taxKey := e.accounts(ctx, fields, tx)

	b := models.NewBooking(doc.ID, tx.BookingDate, tx.AbsAmountMinor(), debit, credit)
	b.TransactionID = tx.ID
	b.Confidence = confidence
	b.AutoBooked = auto
	b.TaxKey = taxKey
	b.Description = bookingDescription(fields, tx)

	// Claim the transaction first: the conditional update loses against a
	// concurrent booking and aborts before anything is written.
	if err := e.store.MarkTransactionMatched(ctx, tx.ID, b.ID); err != nil {
		return nil, err
	}

	if err := e.store.CreateBooking(ctx, b); err != nil {
		if errors.HasCode(err, errors.CodeDuplicateBooking) {
			existing, getErr := e.store.GetBookingByDocument(ctx, doc.ID)
			if getErr == nil && existing != nil {
				e.log.WithField("document_id", doc.ID).Warn("lost booking race, keeping existing booking")
				return existing, nil
			}
		}
		return nil, err
	}

	if err := e.store.LinkDocumentTransaction(ctx, doc.ID, tx.ID); err != nil {
		return nil, err
	}

	e.log.WithField("booking_id", b.ID).
		WithField("document_id", doc.ID).
		WithField("transaction_id", tx.ID).
		WithField("amount", models.FormatMinor(b.AmountMinor)).
		WithField("auto_booked", auto).
		Info("booking created")
	return b, nil
}

// accounts resolves the debit and credit side for the booking. Incoming
// payments are revenue against the settlement account; outgoing payments
// are expenses, with the account taken from the suggester when available
// and the keyword rules otherwise.
func (e *Engine) accounts(ctx context.Context, fields *enrich.ExtractedFields, tx *models.Transaction) (debit, credit, taxKey string) {
	clearing := ClearingAccount(tx.Source)

	rate := 0
	if fields != nil {
		rate = DetectTaxRate(fields.AmountMinor, fields.TaxMinor)
	}
	if rate > 0 {
		taxKey = strconv.Itoa(rate)
	}

	if tx.AmountMinor >= 0 {
		return clearing, RevenueAccount(rate), taxKey
	}

	suggestion := e.suggest(ctx, fields, tx)
	return suggestion.DebitAccount, clearing, taxKey
}

func (e *Engine) suggest(ctx context.Context, fields *enrich.ExtractedFields, tx *models.Transaction) *enrich.AccountSuggestion {
	if e.suggester != nil && fields != nil {
		s, err := e.suggester.SuggestAccounts(ctx, fields)
		if err == nil && s != nil && s.DebitAccount != "" {
			return s
		}
		if err != nil {
			e.log.WithError(err).Warn("account suggester failed, using keyword fallback")
		}
	}

	description := tx.Description
	vendor := tx.PartnerName
	if fields != nil {
		if fields.VendorName != "" {
			vendor = fields.VendorName
		}
	}
	return SuggestExpenseAccount(description, vendor)
}

func bookingDescription(fields *enrich.ExtractedFields, tx *models.Transaction) string {
	if fields != nil && fields.InvoiceNumber != "" {
		if fields.VendorName != "" {
			return fields.VendorName + " " + fields.InvoiceNumber
		}
		return fields.InvoiceNumber
	}
	return tx.Description
}
