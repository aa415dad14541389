package service

import (
	"context"
	"time"

	"document-reconciliation-service/internal/booking"
	"document-reconciliation-service/internal/enrich"
	"document-reconciliation-service/internal/enrichcache"
	"document-reconciliation-service/internal/matcher"
	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/queue"
	"document-reconciliation-service/internal/store"
	"document-reconciliation-service/pkg/errors"
	"document-reconciliation-service/pkg/logger"
)

// Options bundles the tunables of a Service. Zero values fall back to
// the package defaults.
type Options struct {
	MatcherConfig *matcher.Config
	Thresholds    *booking.Thresholds
	QueueConfig   *queue.Config
	CacheTTL      time.Duration
}

// Service wires the full document pipeline together and exposes the
// operations callers consume.
type Service struct {
	store    *store.Store
	queue    *queue.Queue
	queueCfg *queue.Config
	cache    *enrichcache.Cache
	matcher  *matcher.Matcher
	engine   *booking.Engine
	pipeline *queue.Pipeline
	importer *Importer
	log      logger.Logger
}

// New builds a Service from a store and the enrichment capabilities.
// The suggester may be nil; account selection then falls back to the
// keyword rules.
func New(s *store.Store, extractor enrich.Extractor, suggester enrich.Suggester, opts Options) (*Service, error) {
	qcfg := opts.QueueConfig
	if qcfg == nil {
		qcfg = queue.DefaultConfig()
	}
	if err := qcfg.Validate(); err != nil {
		return nil, err
	}

	thresholds := booking.DefaultThresholds()
	if opts.Thresholds != nil {
		thresholds = *opts.Thresholds
	}

	m, err := matcher.New(opts.MatcherConfig)
	if err != nil {
		return nil, err
	}
	engine, err := booking.NewEngine(s, suggester, thresholds)
	if err != nil {
		return nil, err
	}

	cache := enrichcache.New(s, opts.CacheTTL)
	q := queue.New(s)

	return &Service{
		store:    s,
		queue:    q,
		queueCfg: qcfg,
		cache:    cache,
		matcher:  m,
		engine:   engine,
		pipeline: queue.NewPipeline(s, cache, extractor, m, engine, qcfg.ExtractTimeout),
		importer: NewImporter(s),
		log:      logger.WithComponent("service"),
	}, nil
}

// ImportFile ingests one transaction export file.
func (s *Service) ImportFile(ctx context.Context, filename string, content []byte, hint models.SourceType) (*ImportResult, error) {
	return s.importer.ImportFile(ctx, filename, content, hint)
}

// UploadDocument stores a document and returns it. The document is not
// processed until it is enqueued.
func (s *Service) UploadDocument(ctx context.Context, filename string, content []byte) (*models.Document, error) {
	doc := models.NewDocument(filename, content)
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.log.WithField("document_id", doc.ID).WithField("file", filename).Info("document uploaded")
	return doc, nil
}

// EnqueueDocument schedules a document for processing. A document with a
// live job cannot be enqueued again until that job finishes.
func (s *Service) EnqueueDocument(ctx context.Context, documentID string, priority int) (*models.ProcessingJob, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.queue.Enqueue(ctx, documentID, priority, s.queueCfg.MaxRetries)
}

// JobStatus returns the current state of a processing job.
func (s *Service) JobStatus(ctx context.Context, jobID string) (*models.ProcessingJob, error) {
	return s.queue.Status(ctx, jobID)
}

// CancelJob requests cancellation of a processing job.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	return s.queue.Cancel(ctx, jobID)
}

// MatchSuggestions extracts the document (through the cache) and returns
// the ranked open transactions, strongest first. It is read-only: no
// booking or state change happens.
func (s *Service) MatchSuggestions(ctx context.Context, documentID string, limit int) ([]*models.MatchCandidate, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	fields, err := s.pipeline.ExtractFields(ctx, doc)
	if err != nil {
		return nil, err
	}
	candidates, err := s.pipeline.Candidates(ctx, fields)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// ConfirmBooking books a document against a chosen transaction on human
// authority. The transaction does not need to be the engine's best
// candidate; the caller's choice wins, but the stored confidence is the
// real computed score for that pair.
func (s *Service) ConfirmBooking(ctx context.Context, documentID, transactionID string) (*models.Booking, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Processed {
		return nil, errors.MatchingError(errors.CodeConflict, documentID, nil).
			WithContext("transaction_id", transactionID).
			WithSuggestion("the transaction is already consumed by another booking")
	}

	fields, err := s.pipeline.ExtractFields(ctx, doc)
	if err != nil {
		if errors.IsRetryable(err) {
			return nil, err
		}
		// A document that cannot be extracted can still be booked by a
		// human; the accounts then come from the transaction side alone.
		fields = nil
	}

	confidence := 0.0
	if fields != nil {
		ref := fields.Reference
		if ref == "" {
			ref = fields.InvoiceNumber
		}
		candidate := s.matcher.Score(tx, matcher.Query{
			AmountMinor: fields.AmountMinor,
			Date:        fields.IssueDate,
			VendorName:  fields.VendorName,
			Reference:   ref,
		})
		confidence = candidate.Confidence
	}

	return s.engine.Confirm(ctx, doc, fields, tx, confidence)
}

// SweepCache drops expired enrichment cache entries.
func (s *Service) SweepCache(ctx context.Context) (int, error) {
	return s.cache.Sweep(ctx)
}

// ReleaseStaleJobs reclaims jobs from workers that stopped heartbeating.
func (s *Service) ReleaseStaleJobs(ctx context.Context) (int, error) {
	return s.queue.ReleaseStale(ctx, s.queueCfg.VisibilityTimeout)
}

// RunWorkers starts the worker pool and blocks until the context is
// cancelled.
func (s *Service) RunWorkers(ctx context.Context) error {
	pool, err := queue.NewPool(s.queue, s.pipeline, s.queueCfg)
	if err != nil {
		return err
	}
	s.log.WithField("workers", s.queueCfg.Workers).Info("worker pool starting")
	pool.Run(ctx)
	return nil
}
