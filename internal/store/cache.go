package store

import (
	"context"
	"database/sql"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"
)

// PutCacheEntry inserts or replaces a cached enrichment response.
func (s *Store) PutCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, service, payload, created_at, expires_at, hit_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			service = excluded.service,
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			hit_count = 0`,
		e.Key, e.Service, e.Payload, fmtTime(e.CreatedAt), fmtTimePtr(e.ExpiresAt), e.HitCount)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "cache_entry", err)
	}
	return nil
}

// GetCacheEntry returns the entry for key, or nil on a miss. Expiry is
// lazy: an expired row is deleted on access and reported as a miss. Hits
// bump the entry's hit counter.
func (s *Store) GetCacheEntry(ctx context.Context, key string, now time.Time) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, service, payload, created_at, expires_at, hit_count
		FROM cache_entries WHERE key = ?`, key)

	var e models.CacheEntry
	var createdAt string
	var expiresAt sql.NullString
	err := row.Scan(&e.Key, &e.Service, &e.Payload, &createdAt, &expiresAt, &e.HitCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "cache_entry", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "cache_entry", err)
	}
	if e.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "cache_entry", err)
	}

	if e.Expired(now) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "cache_entry", err)
		}
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE cache_entries SET hit_count = hit_count + 1 WHERE key = ?`, key); err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "cache_entry", err)
	}
	e.HitCount++
	return &e, nil
}

// SweepCacheEntries deletes all entries expired at the given instant and
// returns how many were removed. Complements lazy expiry for keys that
// are never read again.
func (s *Store) SweepCacheEntries(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		fmtTime(now))
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "cache_entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "cache_entry", err)
	}
	return int(n), nil
}
