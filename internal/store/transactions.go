package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"
)

// SaveImportBatch persists a batch together with its transactions in one
// database transaction. Rows whose dedup key already exists are counted as
// duplicates and skipped, making repeated imports of the same file
// idempotent. The batch's Created and Duplicates counters are updated to
// reflect what actually happened.
func (s *Store) SaveImportBatch(ctx context.Context, batch *models.ImportBatch, txs []*models.Transaction) error {
	if err := batch.Validate(); err != nil {
		return errors.StorageError(errors.CodeConflict, "import_batch", err)
	}

	return s.inTx(ctx, func(dbtx *sql.Tx) error {
		batch.Created = 0
		batch.Duplicates = 0

		for _, t := range txs {
			t.BatchID = batch.ID
			res, err := dbtx.ExecContext(ctx, `
				INSERT OR IGNORE INTO transactions
					(id, batch_id, source, booking_date, amount_minor, description,
					 counter_account, partner_name, account_number, raw_data,
					 dedup_key, processed, matched_booking_id, imported_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
				t.ID, t.BatchID, t.Source.String(), fmtDay(t.BookingDate), t.AmountMinor,
				t.Description, t.CounterAcct, t.PartnerName, t.AccountNumber,
				string(t.RawData), t.DedupKey, fmtTime(t.ImportedAt))
			if err != nil {
				return errors.StorageError(errors.CodeStorageFailure, "transaction", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.StorageError(errors.CodeStorageFailure, "transaction", err)
			}
			if n == 0 {
				batch.Duplicates++
			} else {
				batch.Created++
			}
		}

		metadata := batch.Metadata
		if len(metadata) == 0 {
			metadata = json.RawMessage("{}")
		}
		_, err := dbtx.ExecContext(ctx, `
			INSERT INTO import_batches
				(id, source, source_file, metadata, rows_total, created, duplicates, row_errors, imported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.ID, batch.Source.String(), batch.SourceFile, string(metadata),
			batch.RowsTotal, batch.Created, batch.Duplicates, batch.RowErrors,
			fmtTime(batch.ImportedAt))
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "import_batch", err)
		}
		return nil
	})
}

// GetImportBatch fetches one import batch by id.
func (s *Store) GetImportBatch(ctx context.Context, id string) (*models.ImportBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, source_file, metadata, rows_total, created, duplicates, row_errors, imported_at
		FROM import_batches WHERE id = ?`, id)

	var b models.ImportBatch
	var source, metadata, importedAt string
	err := row.Scan(&b.ID, &source, &b.SourceFile, &metadata, &b.RowsTotal, &b.Created, &b.Duplicates, &b.RowErrors, &importedAt)
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeNotFound, "import_batch", nil).WithContext("id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "import_batch", err)
	}
	b.Source = models.SourceType(source)
	b.Metadata = json.RawMessage(metadata)
	if b.ImportedAt, err = parseTime(importedAt); err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "import_batch", err)
	}
	return &b, nil
}

// GetTransaction fetches one transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionColumns+` WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeNotFound, "transaction", nil).WithContext("id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "transaction", err)
	}
	return t, nil
}

// UnmatchedInRange returns the unmatched transactions whose booking date
// lies in [from, to], ordered by booking date then id for deterministic
// candidate enumeration.
func (s *Store) UnmatchedInRange(ctx context.Context, from, to time.Time) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, transactionColumns+`
		WHERE processed = 0 AND booking_date >= ? AND booking_date <= ?
		ORDER BY booking_date ASC, id ASC`,
		fmtDay(from), fmtDay(to))
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "transaction", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "transaction", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkTransactionMatched flags a transaction as consumed by a booking.
// The update is conditional on the transaction still being unmatched, so
// two concurrent bookings cannot both consume it.
func (s *Store) MarkTransactionMatched(ctx context.Context, transactionID, bookingID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET processed = 1, matched_booking_id = ?
		WHERE id = ? AND processed = 0`,
		bookingID, transactionID)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "transaction", err)
	}
	if n == 0 {
		return errors.StorageError(errors.CodeConflict, "transaction", nil).
			WithContext("id", transactionID).
			WithSuggestion("the transaction was already matched by another booking")
	}
	return nil
}

const transactionColumns = `
	SELECT id, batch_id, source, booking_date, amount_minor, description,
	       counter_account, partner_name, account_number, raw_data,
	       dedup_key, processed, matched_booking_id, imported_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var source, bookingDate, importedAt string
	var rawData, matchedBookingID sql.NullString
	var processed int

	err := row.Scan(&t.ID, &t.BatchID, &source, &bookingDate, &t.AmountMinor,
		&t.Description, &t.CounterAcct, &t.PartnerName, &t.AccountNumber,
		&rawData, &t.DedupKey, &processed, &matchedBookingID, &importedAt)
	if err != nil {
		return nil, err
	}

	t.Source = models.SourceType(source)
	t.Processed = processed != 0
	if matchedBookingID.Valid {
		t.MatchedBookingID = matchedBookingID.String
	}
	if rawData.Valid && strings.TrimSpace(rawData.String) != "" {
		t.RawData = json.RawMessage(rawData.String)
	}
	if t.BookingDate, err = parseDay(bookingDate); err != nil {
		return nil, err
	}
	if t.ImportedAt, err = parseTime(importedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
