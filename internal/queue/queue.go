// Package queue is the durable processing queue: it hands documents to
// workers exactly once, retries transient failures with a bounded budget,
// and reclaims jobs from workers that stopped heartbeating.
//
// All queue state lives in the store; the package adds the lifecycle
// policy on top (retryable vs terminal failures, cancellation, the
// visibility timeout) and the worker pool that drains it.
package queue

import (
	"context"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/store"
	"document-reconciliation-service/pkg/errors"
	"document-reconciliation-service/pkg/logger"
)

// Config holds the queue and worker pool settings.
type Config struct {
	// Workers is the number of concurrent pipeline workers.
	Workers int `mapstructure:"workers"`

	// MaxRetries is the default retry budget for enqueued jobs.
	MaxRetries int `mapstructure:"max_retries"`

	// PollInterval is how long an idle worker waits before checking the
	// queue again.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// HeartbeatInterval is how often a worker refreshes its claim.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// VisibilityTimeout is how stale a heartbeat may get before the job is
	// taken away from its worker and requeued.
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`

	// ExtractTimeout bounds a single external extraction call.
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
}

// DefaultConfig returns the production queue settings.
func DefaultConfig() *Config {
	return &Config{
		Workers:           4,
		MaxRetries:        3,
		PollInterval:      2 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		VisibilityTimeout: 2 * time.Minute,
		ExtractTimeout:    90 * time.Second,
	}
}

// Validate checks the configuration for values the pool cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "workers", c.Workers, nil).
			WithSuggestion("the pool needs at least one worker")
	}
	if c.MaxRetries < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_retries", c.MaxRetries, nil)
	}
	if c.PollInterval <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "poll_interval", c.PollInterval, nil)
	}
	if c.HeartbeatInterval <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "heartbeat_interval", c.HeartbeatInterval, nil)
	}
	if c.VisibilityTimeout <= c.HeartbeatInterval {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "visibility_timeout", c.VisibilityTimeout, nil).
			WithSuggestion("the visibility timeout must exceed the heartbeat interval or healthy workers lose their jobs")
	}
	return nil
}

// Queue wraps the store's job tables with the lifecycle policy.
type Queue struct {
	store *store.Store
	log   logger.Logger
}

// New creates a Queue on top of the store.
func New(s *store.Store) *Queue {
	return &Queue{
		store: s,
		log:   logger.WithComponent("queue"),
	}
}

// Enqueue creates a pending job for a document. The store enforces at
// most one live job per document, so enqueueing a document that is
// already queued or running fails with CodeDuplicateJob.
func (q *Queue) Enqueue(ctx context.Context, documentID string, priority, maxRetries int) (*models.ProcessingJob, error) {
	j := models.NewProcessingJob(documentID, priority, maxRetries)
	if err := q.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	q.log.WithField("job_id", j.ID).
		WithField("document_id", documentID).
		WithField("priority", priority).
		Info("job enqueued")
	return j, nil
}

// Claim hands the next pending job to a worker, or nil when the queue is
// empty.
func (q *Queue) Claim(ctx context.Context) (*models.ProcessingJob, error) {
	return q.store.ClaimNextJob(ctx)
}

// Heartbeat refreshes a claimed job's liveness timestamp.
func (q *Queue) Heartbeat(ctx context.Context, id string) error {
	return q.store.HeartbeatJob(ctx, id)
}

// Complete finishes a claimed job successfully.
func (q *Queue) Complete(ctx context.Context, id string) error {
	return q.store.CompleteJob(ctx, id)
}

// Fail records a pipeline error against a claimed job. Retryable errors
// consume retry budget and requeue while any remains; everything else
// fails the job terminally. The returned flag reports whether the job
// will run again.
func (q *Queue) Fail(ctx context.Context, id string, cause error) (bool, error) {
	if errors.IsRetryable(cause) {
		return q.store.FailJob(ctx, id, cause.Error())
	}
	return false, q.store.FailJobTerminal(ctx, id, cause.Error())
}

// Cancel requests cancellation of a job. Pending jobs fail immediately;
// a running job is flagged and its worker stops at the next stage
// boundary.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	return q.store.CancelJob(ctx, id)
}

// Status returns the current state of a job.
func (q *Queue) Status(ctx context.Context, id string) (*models.ProcessingJob, error) {
	return q.store.GetJob(ctx, id)
}

// ActiveJobForDocument returns the live job for a document, or nil.
func (q *Queue) ActiveJobForDocument(ctx context.Context, documentID string) (*models.ProcessingJob, error) {
	return q.store.ActiveJobForDocument(ctx, documentID)
}

// ReleaseStale reclaims jobs whose worker heartbeat is older than the
// visibility timeout. It returns how many jobs changed state.
func (q *Queue) ReleaseStale(ctx context.Context, visibilityTimeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-visibilityTimeout)
	n, err := q.store.ReleaseStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.log.WithField("released", n).Warn("reclaimed jobs from stale workers")
	}
	return n, nil
}
