package enrich

import (
	"context"
	"sync"

	"document-reconciliation-service/internal/models"
)

// StaticExtractor is an Extractor backed by a fixed answer per document
// id. It is used in tests and in offline deployments where documents are
// pre-annotated.
type StaticExtractor struct {
	mu      sync.Mutex
	byDoc   map[string]*ExtractedFields
	errs    map[string]error
	calls   int
	Default *ExtractedFields
}

// NewStaticExtractor creates an empty StaticExtractor.
func NewStaticExtractor() *StaticExtractor {
	return &StaticExtractor{
		byDoc: make(map[string]*ExtractedFields),
		errs:  make(map[string]error),
	}
}

// Name implements Extractor.
func (e *StaticExtractor) Name() string { return "static-extractor" }

// SetFields registers the answer for a document id.
func (e *StaticExtractor) SetFields(documentID string, fields *ExtractedFields) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byDoc[documentID] = fields
}

// SetError makes extraction for a document id fail with err.
func (e *StaticExtractor) SetError(documentID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[documentID] = err
}

// Calls reports how many times Extract ran.
func (e *StaticExtractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Extract implements Extractor.
func (e *StaticExtractor) Extract(ctx context.Context, doc *models.Document) (*ExtractedFields, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := e.errs[doc.ID]; ok {
		return nil, err
	}
	if fields, ok := e.byDoc[doc.ID]; ok {
		return fields, nil
	}
	if e.Default != nil {
		return e.Default, nil
	}
	return &ExtractedFields{DocType: models.DocTypeUnknown}, nil
}

// StaticSuggester is a Suggester with one fixed answer.
type StaticSuggester struct {
	Suggestion *AccountSuggestion
	Err        error
}

// Name implements Suggester.
func (s *StaticSuggester) Name() string { return "static-suggester" }

// SuggestAccounts implements Suggester.
func (s *StaticSuggester) SuggestAccounts(ctx context.Context, fields *ExtractedFields) (*AccountSuggestion, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Suggestion, nil
}
