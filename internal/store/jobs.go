package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"
)

// CreateJob enqueues a processing job. The schema enforces at most one
// pending or processing job per document; a second enqueue for the same
// document fails with CodeDuplicateJob.
func (s *Store) CreateJob(ctx context.Context, j *models.ProcessingJob) error {
	if err := j.Validate(); err != nil {
		return errors.QueueError(errors.CodeJobNotClaimable, j.ID, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_jobs
			(id, document_id, priority, status, created_at, started_at, completed_at,
			 heartbeat_at, retry_count, max_retries, last_error, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.DocumentID, j.Priority, string(j.Status), fmtTime(j.CreatedAt),
		fmtTimePtr(j.StartedAt), fmtTimePtr(j.CompletedAt), fmtTimePtr(j.HeartbeatAt),
		j.RetryCount, j.MaxRetries, j.LastError, boolInt(j.Cancelled))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return errors.QueueError(errors.CodeDuplicateJob, j.ID, err).
				WithContext("document_id", j.DocumentID)
		}
		return errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	return nil
}

// ClaimNextJob atomically claims the next pending job: highest priority
// first, then oldest, then lowest id. It returns nil when the queue is
// empty.
//
// The claim is a compare-and-swap: the conditional UPDATE only succeeds if
// the job is still pending, so two workers can never claim the same job
// even without row locking.
func (s *Store) ClaimNextJob(ctx context.Context) (*models.ProcessingJob, error) {
	for {
		var id string
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM processing_jobs
			WHERE status = 'pending' AND cancelled = 0
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1`).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "job", err)
		}

		now := fmtTime(time.Now())
		res, err := s.db.ExecContext(ctx, `
			UPDATE processing_jobs
			SET status = 'processing', started_at = ?, heartbeat_at = ?
			WHERE id = ? AND status = 'pending'`,
			now, now, id)
		if err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "job", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "job", err)
		}
		if n == 0 {
			// Lost the race to another worker; pick the next candidate.
			continue
		}
		return s.GetJob(ctx, id)
	}
}

// HeartbeatJob refreshes the liveness timestamp of a claimed job.
func (s *Store) HeartbeatJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs SET heartbeat_at = ?
		WHERE id = ? AND status = 'processing'`,
		fmtTime(time.Now()), id)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.QueueError(errors.CodeJobNotClaimable, id, nil).
			WithSuggestion("the job is no longer in processing state")
	}
	return nil
}

// CompleteJob transitions a claimed job to its terminal completed state.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'processing'`,
		fmtTime(time.Now()), id)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.QueueError(errors.CodeJobNotClaimable, id, nil).
			WithSuggestion("only a processing job can complete")
	}
	return nil
}

// FailJob records a processing failure. Jobs with retry budget left go
// back to pending with an incremented retry count; exhausted jobs land in
// the terminal failed state. The returned flag reports whether the job
// will run again.
func (s *Store) FailJob(ctx context.Context, id, cause string) (bool, error) {
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if j.Status != models.JobProcessing {
		return false, errors.QueueError(errors.CodeJobNotClaimable, id, nil).
			WithSuggestion("only a processing job can fail")
	}

	if j.Cancelled || j.RetryCount >= j.MaxRetries {
		res, err := s.db.ExecContext(ctx, `
			UPDATE processing_jobs
			SET status = 'failed', completed_at = ?, last_error = ?
			WHERE id = ? AND status = 'processing'`,
			fmtTime(time.Now()), cause, id)
		if err != nil {
			return false, errors.StorageError(errors.CodeStorageFailure, "job", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, errors.QueueError(errors.CodeJobNotClaimable, id, nil)
		}
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'pending', retry_count = retry_count + 1, last_error = ?,
		    started_at = NULL, heartbeat_at = NULL
		WHERE id = ? AND status = 'processing'`,
		cause, id)
	if err != nil {
		return false, errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, errors.QueueError(errors.CodeJobNotClaimable, id, nil)
	}
	return true, nil
}

// FailJobTerminal moves a processing job straight to failed, ignoring any
// remaining retry budget. It is the sink for non-retryable pipeline errors.
func (s *Store) FailJobTerminal(ctx context.Context, id, cause string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'failed', completed_at = ?, last_error = ?
		WHERE id = ? AND status = 'processing'`,
		fmtTime(time.Now()), cause, id)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.QueueError(errors.CodeJobNotClaimable, id, nil).
			WithSuggestion("only a processing job can fail")
	}
	return nil
}

// CancelJob requests cancellation. A still-pending job fails immediately;
// a processing job keeps its cancelled flag set and the worker honors it
// at the next check. Terminal jobs are left untouched.
func (s *Store) CancelJob(ctx context.Context, id string) error {
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if j.Status.IsTerminal() {
		return errors.QueueError(errors.CodeJobCancelled, id, nil).
			WithSuggestion("the job already finished; cancellation has no effect")
	}

	if j.Status == models.JobPending {
		_, err = s.db.ExecContext(ctx, `
			UPDATE processing_jobs
			SET cancelled = 1, status = 'failed', completed_at = ?, last_error = 'cancelled'
			WHERE id = ? AND status = 'pending'`,
			fmtTime(time.Now()), id)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE processing_jobs SET cancelled = 1 WHERE id = ? AND status = 'processing'`, id)
	}
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	return nil
}

// IsJobCancelled reports the cancelled flag; workers poll it between
// pipeline stages.
func (s *Store) IsJobCancelled(ctx context.Context, id string) (bool, error) {
	var cancelled int
	err := s.db.QueryRowContext(ctx, `SELECT cancelled FROM processing_jobs WHERE id = ?`, id).Scan(&cancelled)
	if err == sql.ErrNoRows {
		return false, errors.QueueError(errors.CodeJobNotFound, id, nil)
	}
	if err != nil {
		return false, errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	return cancelled != 0, nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.ProcessingJob, error) {
	row := s.db.QueryRowContext(ctx, jobColumns+` WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.QueueError(errors.CodeJobNotFound, id, nil)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	return j, nil
}

// ActiveJobForDocument returns the pending or processing job for a
// document, or nil when the document has no live job.
func (s *Store) ActiveJobForDocument(ctx context.Context, documentID string) (*models.ProcessingJob, error) {
	row := s.db.QueryRowContext(ctx, jobColumns+`
		WHERE document_id = ? AND status IN ('pending', 'processing')`, documentID)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	return j, nil
}

// ReleaseStale requeues processing jobs whose heartbeat is older than the
// cutoff. Jobs out of retry budget fail terminally instead. It returns
// how many jobs changed state.
func (s *Store) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	var released int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE processing_jobs
			SET status = 'pending', retry_count = retry_count + 1,
			    last_error = 'worker heartbeat expired', started_at = NULL, heartbeat_at = NULL
			WHERE status = 'processing' AND heartbeat_at < ? AND cancelled = 0
			  AND retry_count < max_retries`,
			fmtTime(cutoff))
		if err != nil {
			return err
		}
		n1, err := res.RowsAffected()
		if err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE processing_jobs
			SET status = 'failed', completed_at = ?, last_error = 'worker heartbeat expired'
			WHERE status = 'processing' AND heartbeat_at < ?
			  AND (retry_count >= max_retries OR cancelled = 1)`,
			fmtTime(time.Now()), fmtTime(cutoff))
		if err != nil {
			return err
		}
		n2, err := res.RowsAffected()
		if err != nil {
			return err
		}

		released = n1 + n2
		return nil
	})
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "job", err)
	}
	return int(released), nil
}

const jobColumns = `
	SELECT id, document_id, priority, status, created_at, started_at, completed_at,
	       heartbeat_at, retry_count, max_retries, last_error, cancelled
	FROM processing_jobs`

func scanJob(row rowScanner) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	var status, createdAt string
	var startedAt, completedAt, heartbeatAt sql.NullString
	var cancelled int

	err := row.Scan(&j.ID, &j.DocumentID, &j.Priority, &status, &createdAt,
		&startedAt, &completedAt, &heartbeatAt,
		&j.RetryCount, &j.MaxRetries, &j.LastError, &cancelled)
	if err != nil {
		return nil, err
	}

	j.Status = models.JobStatus(status)
	j.Cancelled = cancelled != 0
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if j.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if j.HeartbeatAt, err = parseTimePtr(heartbeatAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
