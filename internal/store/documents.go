package store

import (
	"context"
	"database/sql"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"
)

// CreateDocument persists an uploaded document.
func (s *Store) CreateDocument(ctx context.Context, d *models.Document) error {
	if err := d.Validate(); err != nil {
		return errors.StorageError(errors.CodeConflict, "document", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, content, doc_type, import_batch_id, matched_transaction_id, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Filename, d.Content, string(d.DocType),
		nullable(d.ImportBatchID), nullable(d.MatchedTransactionID), fmtTime(d.UploadedAt))
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "document", err)
	}
	return nil
}

// GetDocument fetches one document by id, including its content.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, content, doc_type, import_batch_id, matched_transaction_id, uploaded_at
		FROM documents WHERE id = ?`, id)

	var d models.Document
	var docType, uploadedAt string
	var batchID, matchedTx sql.NullString

	err := row.Scan(&d.ID, &d.Filename, &d.Content, &docType, &batchID, &matchedTx, &uploadedAt)
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeNotFound, "document", nil).WithContext("id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "document", err)
	}

	d.DocType = models.DocumentType(docType)
	d.ImportBatchID = batchID.String
	d.MatchedTransactionID = matchedTx.String
	if d.UploadedAt, err = parseTime(uploadedAt); err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "document", err)
	}
	return &d, nil
}

// UpdateDocumentType records the classification produced by extraction.
func (s *Store) UpdateDocumentType(ctx context.Context, id string, docType models.DocumentType) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET doc_type = ? WHERE id = ?`, string(docType), id)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.StorageError(errors.CodeNotFound, "document", nil).WithContext("id", id)
	}
	return nil
}

// LinkDocumentTransaction records which transaction a document matched.
func (s *Store) LinkDocumentTransaction(ctx context.Context, documentID, transactionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET matched_transaction_id = ? WHERE id = ?`,
		transactionID, documentID)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.StorageError(errors.CodeNotFound, "document", nil).WithContext("id", documentID)
	}
	return nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
