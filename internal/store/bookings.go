package store

import (
	"context"
	"database/sql"
	"strings"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"
)

// CreateBooking persists a booking. Each document can carry at most one
// booking; a second attempt fails with CodeDuplicateBooking so retried
// jobs cannot double-book.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	if err := b.Validate(); err != nil {
		return errors.BookingError(errors.CodeBookingRejected, b.DocumentID, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings
			(id, booking_date, amount_minor, debit_account, credit_account,
			 description, tax_key, confidence, auto_booked, document_id, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, fmtDay(b.BookingDate), b.AmountMinor, b.DebitAccount, b.CreditAccount,
		b.Description, b.TaxKey, b.Confidence, boolInt(b.AutoBooked),
		b.DocumentID, nullable(b.TransactionID), fmtTime(b.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return errors.BookingError(errors.CodeDuplicateBooking, b.DocumentID, err)
		}
		return errors.StorageError(errors.CodeStorageFailure, "booking", err)
	}
	return nil
}

// GetBooking fetches one booking by id.
func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, bookingColumns+` WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeNotFound, "booking", nil).WithContext("id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "booking", err)
	}
	return b, nil
}

// GetBookingByDocument returns the booking for a document, or nil when
// none exists yet.
func (s *Store) GetBookingByDocument(ctx context.Context, documentID string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, bookingColumns+` WHERE document_id = ?`, documentID)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "booking", err)
	}
	return b, nil
}

const bookingColumns = `
	SELECT id, booking_date, amount_minor, debit_account, credit_account,
	       description, tax_key, confidence, auto_booked, document_id, transaction_id, created_at
	FROM bookings`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var bookingDate, createdAt string
	var transactionID sql.NullString
	var autoBooked int

	err := row.Scan(&b.ID, &bookingDate, &b.AmountMinor, &b.DebitAccount, &b.CreditAccount,
		&b.Description, &b.TaxKey, &b.Confidence, &autoBooked, &b.DocumentID, &transactionID, &createdAt)
	if err != nil {
		return nil, err
	}

	b.AutoBooked = autoBooked != 0
	b.TransactionID = transactionID.String
	if b.BookingDate, err = parseDay(bookingDate); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}
