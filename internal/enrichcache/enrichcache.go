// Package enrichcache memoizes responses from external enrichment
// capabilities so that retried jobs and repeated documents do not trigger
// repeated external calls.
//
// It is a two-tier cache: a process-local hot tier (patrickmn/go-cache)
// in front of the durable cache_entries table. The durable tier survives
// restarts; the hot tier only saves the SQLite round trip.
package enrichcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/store"
	"document-reconciliation-service/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long cached enrichment responses stay valid. Invoice
// extraction results do not go stale quickly; the TTL mainly bounds
// storage growth.
const DefaultTTL = 30 * 24 * time.Hour

// Cache is the two-tier enrichment response cache.
type Cache struct {
	store *store.Store
	hot   *gocache.Cache
	ttl   time.Duration
	log   logger.Logger

	now func() time.Time
}

// New creates a cache backed by the given store. A non-positive ttl
// falls back to DefaultTTL.
func New(s *store.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store: s,
		hot:   gocache.New(ttl, 10*time.Minute),
		ttl:   ttl,
		log:   logger.WithComponent("enrichcache"),
		now:   time.Now,
	}
}

// Key derives the cache key for a request. It is a pure function of the
// service name and the semantically relevant request fields, so the same
// logical request always maps to the same key regardless of field order
// or retry attempt.
func Key(service string, fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(service)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(fields[name])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return service + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached payload for key, with a flag reporting whether
// it was a hit. Expired entries count as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if payload, ok := c.hot.Get(key); ok {
		// The durable tier is authoritative for both expiry and the hit
		// count; a hot copy it no longer vouches for is dropped.
		entry, err := c.store.GetCacheEntry(ctx, key, c.now())
		if err != nil {
			return nil, false, err
		}
		if entry == nil {
			c.hot.Delete(key)
			return nil, false, nil
		}
		return payload.([]byte), true, nil
	}

	entry, err := c.store.GetCacheEntry(ctx, key, c.now())
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}

	c.hot.Set(key, entry.Payload, c.hotTTL(entry))
	return entry.Payload, true, nil
}

// Put stores a response under key. Overwriting an existing entry resets
// its age, expiry, and hit count.
func (c *Cache) Put(ctx context.Context, service, key string, payload []byte) error {
	now := c.now().UTC()
	expiry := now.Add(c.ttl)
	entry := &models.CacheEntry{
		Key:       key,
		Service:   service,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: &expiry,
	}
	if err := c.store.PutCacheEntry(ctx, entry); err != nil {
		return err
	}
	c.hot.Set(key, payload, c.ttl)
	return nil
}

// GetOrFetch returns the cached payload for the request, calling fetch on
// a miss and caching its result. The hit flag reports whether fetch was
// avoided. Fetch errors are returned without poisoning the cache.
func (c *Cache) GetOrFetch(ctx context.Context, service string, fields map[string]string, fetch func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	key := Key(service, fields)

	payload, hit, err := c.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if hit {
		c.log.WithField("service", service).Debug("enrichment cache hit")
		return payload, true, nil
	}

	payload, err = fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(ctx, service, key, payload); err != nil {
		return nil, false, err
	}
	return payload, false, nil
}

// Sweep removes expired entries from both tiers and returns how many
// durable entries were deleted.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	c.hot.DeleteExpired()
	n, err := c.store.SweepCacheEntries(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.WithField("removed", n).Info("swept expired enrichment cache entries")
	}
	return n, nil
}

func (c *Cache) hotTTL(entry *models.CacheEntry) time.Duration {
	if entry.ExpiresAt == nil {
		return gocache.NoExpiration
	}
	remaining := entry.ExpiresAt.Sub(c.now())
	if remaining <= 0 {
		return time.Nanosecond
	}
	return remaining
}
