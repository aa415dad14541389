package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"document-reconciliation-service/internal/booking"
	"document-reconciliation-service/internal/enrich"
	"document-reconciliation-service/internal/enrichcache"
	"document-reconciliation-service/internal/matcher"
	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/store"
	"document-reconciliation-service/pkg/errors"
	"document-reconciliation-service/pkg/logger"
)

// Handler processes one claimed job. A retryable error (per
// errors.IsRetryable) puts the job back in the queue; any other error
// fails it terminally.
type Handler interface {
	Handle(ctx context.Context, job *models.ProcessingJob) error
}

// Pipeline is the production Handler: extract (through the cache), match
// against the unprocessed transaction window, then run the booking
// decision. Cancellation is checked between stages.
type Pipeline struct {
	store     *store.Store
	cache     *enrichcache.Cache
	extractor enrich.Extractor
	matcher   *matcher.Matcher
	engine    *booking.Engine

	extractTimeout time.Duration
	log            logger.Logger
}

// NewPipeline wires the processing stages together. The extract timeout
// bounds a single external call; zero disables the bound.
func NewPipeline(s *store.Store, cache *enrichcache.Cache, extractor enrich.Extractor, m *matcher.Matcher, engine *booking.Engine, extractTimeout time.Duration) *Pipeline {
	return &Pipeline{
		store:          s,
		cache:          cache,
		extractor:      extractor,
		matcher:        m,
		engine:         engine,
		extractTimeout: extractTimeout,
		log:            logger.WithComponent("pipeline"),
	}
}

// Handle runs one document through the pipeline.
func (p *Pipeline) Handle(ctx context.Context, job *models.ProcessingJob) error {
	if err := p.checkCancelled(ctx, job); err != nil {
		return err
	}

	doc, err := p.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return err
	}

	fields, err := p.ExtractFields(ctx, doc)
	if err != nil {
		if errors.IsRetryable(err) {
			return err
		}
		// Fatal extraction errors are not worth a retry; the document
		// still goes through the decision engine so it lands in the
		// manual pile instead of silently disappearing.
		p.log.WithError(err).
			WithField("document_id", doc.ID).
			Warn("extraction failed, routing to manual entry")
		fields = nil
	}

	if err := p.checkCancelled(ctx, job); err != nil {
		return err
	}

	var best *models.MatchCandidate
	var ambiguous bool
	if fields != nil {
		if fields.DocType != models.DocTypeUnknown && fields.DocType != doc.DocType {
			if err := p.store.UpdateDocumentType(ctx, doc.ID, fields.DocType); err != nil {
				return err
			}
			doc.DocType = fields.DocType
		}
		best, ambiguous, err = p.match(ctx, fields)
		if err != nil {
			return err
		}
	}

	if err := p.checkCancelled(ctx, job); err != nil {
		return err
	}

	outcome, err := p.engine.Process(ctx, doc, fields, best, ambiguous)
	if err != nil {
		return err
	}

	entry := p.log.WithField("job_id", job.ID).
		WithField("document_id", doc.ID).
		WithField("decision", string(outcome.Decision))
	if best != nil {
		entry = entry.WithField("confidence", best.Confidence)
	}
	entry.Info("document processed")
	return nil
}

func (p *Pipeline) checkCancelled(ctx context.Context, job *models.ProcessingJob) error {
	cancelled, err := p.store.IsJobCancelled(ctx, job.ID)
	if err != nil {
		return err
	}
	if cancelled {
		return errors.QueueError(errors.CodeJobCancelled, job.ID, nil)
	}
	return nil
}

// ExtractFields fetches the document's fields through the enrichment
// cache, so retried jobs and re-uploads of the same file reuse one
// external call.
func (p *Pipeline) ExtractFields(ctx context.Context, doc *models.Document) (*enrich.ExtractedFields, error) {
	if p.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.extractTimeout)
		defer cancel()
	}

	payload, hit, err := p.cache.GetOrFetch(ctx, p.extractor.Name(), cacheFields(doc), func(ctx context.Context) ([]byte, error) {
		f, err := p.extractor.Extract(ctx, doc)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.ExtractionError(errors.CodeExtractionTimeout, doc.ID, err)
			}
			return nil, err
		}
		return f.Marshal()
	})
	if err != nil {
		return nil, err
	}
	if hit {
		p.log.WithField("document_id", doc.ID).Debug("extraction served from cache")
	}
	return enrich.UnmarshalFields(payload)
}

// cacheFields derives the cache identity of an extraction request. Keying
// on the content hash means a re-uploaded document hits the same entry.
func cacheFields(doc *models.Document) map[string]string {
	sum := sha256.Sum256(doc.Content)
	return map[string]string{"content_sha256": hex.EncodeToString(sum[:])}
}

func (p *Pipeline) match(ctx context.Context, fields *enrich.ExtractedFields) (*models.MatchCandidate, bool, error) {
	txs, q, err := p.window(ctx, fields)
	if err != nil {
		return nil, false, err
	}
	best, ambiguous := p.matcher.Best(txs, q)
	return best, ambiguous, nil
}

// Candidates ranks the open transactions for a document's fields,
// strongest first. It backs the match suggestion surface.
func (p *Pipeline) Candidates(ctx context.Context, fields *enrich.ExtractedFields) ([]*models.MatchCandidate, error) {
	txs, q, err := p.window(ctx, fields)
	if err != nil {
		return nil, err
	}
	return p.matcher.Rank(txs, q), nil
}

// window loads the unprocessed transactions around the document's issue
// date and builds the match query. An unknown issue date centers the
// window on today.
func (p *Pipeline) window(ctx context.Context, fields *enrich.ExtractedFields) ([]*models.Transaction, matcher.Query, error) {
	ref := fields.Reference
	if ref == "" {
		ref = fields.InvoiceNumber
	}
	q := matcher.Query{
		AmountMinor: fields.AmountMinor,
		Date:        fields.IssueDate,
		VendorName:  fields.VendorName,
		Reference:   ref,
	}

	center := fields.IssueDate
	if center.IsZero() {
		center = time.Now().UTC()
	}
	from, to := p.matcher.Config().Window(center)
	txs, err := p.store.UnmatchedInRange(ctx, from, to)
	if err != nil {
		return nil, matcher.Query{}, err
	}
	return txs, q, nil
}

// Pool runs a fixed set of workers draining the queue, plus a reaper
// that reclaims jobs from workers that stopped heartbeating.
type Pool struct {
	queue   *Queue
	handler Handler
	cfg     *Config
	log     logger.Logger
}

// NewPool creates a worker pool. A nil config uses defaults.
func NewPool(q *Queue, handler Handler, cfg *Config) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		queue:   q,
		handler: handler,
		cfg:     cfg,
		log:     logger.WithComponent("worker"),
	}, nil
}

// Run blocks until the context is cancelled, then waits for in-flight
// jobs to finish their current attempt.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.workerLoop(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reaperLoop(ctx)
	}()

	wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	log := p.log.WithField("worker", id)
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return
		default:
		}

		job, err := p.queue.Claim(ctx)
		if err != nil {
			log.WithError(err).Error("claim failed")
			p.sleep(ctx, p.cfg.PollInterval)
			continue
		}
		if job == nil {
			p.sleep(ctx, p.cfg.PollInterval)
			continue
		}

		p.runJob(ctx, log, job)
	}
}

func (p *Pool) runJob(ctx context.Context, log logger.Logger, job *models.ProcessingJob) {
	log = log.WithField("job_id", job.ID).WithField("document_id", job.DocumentID)
	log.Info("job claimed")

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.heartbeatLoop(hbCtx, job.ID)
	}()

	err := p.handler.Handle(ctx, job)

	stopHeartbeat()
	<-done

	// The job outcome must be recorded even when the pool is shutting
	// down, so the lifecycle writes run on a fresh context.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err == nil {
		if cerr := p.queue.Complete(finishCtx, job.ID); cerr != nil {
			log.WithError(cerr).Error("failed to complete job")
		} else {
			log.Info("job completed")
		}
		return
	}

	retrying, ferr := p.queue.Fail(finishCtx, job.ID, err)
	if ferr != nil {
		log.WithError(ferr).Error("failed to record job failure")
		return
	}
	if retrying {
		log.WithError(err).Warn("job failed, will retry")
	} else {
		log.WithError(err).Error("job failed terminally")
	}
}

func (p *Pool) heartbeatLoop(ctx context.Context, jobID string) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.Heartbeat(ctx, jobID); err != nil {
				p.log.WithError(err).WithField("job_id", jobID).Warn("heartbeat failed")
			}
		}
	}
}

func (p *Pool) reaperLoop(ctx context.Context) {
	interval := p.cfg.VisibilityTimeout / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.queue.ReleaseStale(ctx, p.cfg.VisibilityTimeout); err != nil {
				p.log.WithError(err).Error("stale job sweep failed")
			}
		}
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
