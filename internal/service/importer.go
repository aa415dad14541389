// Package service is the application facade: file import, document
// intake, job control, and the human-facing match and booking surface.
// Everything a caller (CLI, API) does goes through here.
package service

import (
	"context"
	"encoding/json"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/parsers"
	"document-reconciliation-service/internal/store"
	"document-reconciliation-service/pkg/errors"
	"document-reconciliation-service/pkg/logger"
)

// ImportResult reports what an import did. RowErrors is nil when every
// row parsed; a non-nil batch means partial success, never total
// failure.
type ImportResult struct {
	Batch     *models.ImportBatch   `json:"batch"`
	Stats     parsers.ParseStats    `json:"stats"`
	RowErrors *errors.RowErrorBatch `json:"row_errors,omitempty"`
}

// Importer turns raw export files into stored transactions.
type Importer struct {
	store *store.Store
	log   logger.Logger
}

// NewImporter creates an Importer on top of the store.
func NewImporter(s *store.Store) *Importer {
	return &Importer{
		store: s,
		log:   logger.WithComponent("importer"),
	}
}

// ImportFile detects the format of a transaction export, parses it, and
// persists the rows. An empty hint means full auto-detection; a set hint
// must agree with what the content looks like.
//
// Re-importing a file is idempotent: rows already present are counted as
// duplicates and skipped. Malformed rows are collected per row and never
// abort the batch.
func (i *Importer) ImportFile(ctx context.Context, filename string, content []byte, hint models.SourceType) (*ImportResult, error) {
	source, err := parsers.Detect(filename, content, hint)
	if err != nil {
		return nil, err
	}

	parser, err := parsers.ForSource(source)
	if err != nil {
		return nil, err
	}

	parsed, err := parser.Parse(filename, content)
	if err != nil {
		return nil, err
	}

	// Final validation pass before persistence; large exports report
	// progress as they go. A row the parser let through but that fails
	// validation joins the row errors instead of aborting the batch.
	tracker := logger.NewProgressTracker(i.log, "import "+filename, int64(len(parsed.Transactions)))
	txs := make([]*models.Transaction, 0, len(parsed.Transactions))
	for n, t := range parsed.Transactions {
		if verr := t.Validate(); verr != nil {
			if parsed.RowErrors == nil {
				parsed.RowErrors = errors.NewRowErrorBatch(filename)
			}
			parsed.RowErrors.Add(errors.ImportError(errors.CodeRowMalformed, filename, verr))
			continue
		}
		txs = append(txs, t)
		tracker.Update(int64(n + 1))
	}
	tracker.Done()

	batch := models.NewImportBatch(source, filename)
	batch.RowsTotal = parsed.Stats.RowsTotal
	if parsed.RowErrors != nil {
		batch.RowErrors = parsed.RowErrors.Len()
	}
	if len(parsed.Metadata) > 0 {
		if raw, merr := json.Marshal(parsed.Metadata); merr == nil {
			batch.Metadata = raw
		}
	}

	if err := i.store.SaveImportBatch(ctx, batch, txs); err != nil {
		return nil, err
	}

	entry := i.log.WithField("batch_id", batch.ID).
		WithField("source", source.String()).
		WithField("file", filename).
		WithField("created", batch.Created).
		WithField("duplicates", batch.Duplicates)
	if batch.RowErrors > 0 {
		entry.WithField("row_errors", batch.RowErrors).Warn("import finished with row errors")
	} else {
		entry.Info("import finished")
	}

	result := &ImportResult{Batch: batch, Stats: parsed.Stats}
	if parsed.RowErrors != nil && parsed.RowErrors.Len() > 0 {
		result.RowErrors = parsed.RowErrors
	}
	return result, nil
}
