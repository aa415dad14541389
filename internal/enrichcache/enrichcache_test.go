package enrichcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"document-reconciliation-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, ttl)
}

func TestKeyIsStableAcrossFieldOrder(t *testing.T) {
	a := Key("extractor", map[string]string{"filename": "invoice.pdf", "sha256": "abc"})
	b := Key("extractor", map[string]string{"sha256": "abc", "filename": "invoice.pdf"})
	assert.Equal(t, a, b)

	// Different fields or service give a different key.
	assert.NotEqual(t, a, Key("extractor", map[string]string{"filename": "other.pdf", "sha256": "abc"}))
	assert.NotEqual(t, a, Key("suggester", map[string]string{"filename": "invoice.pdf", "sha256": "abc"}))
}

func TestGetOrFetchCachesResult(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()
	fields := map[string]string{"sha256": "abc"}

	calls := 0
	fetch := func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"amount":11900}`), nil
	}

	payload, hit, err := c.GetOrFetch(ctx, "extractor", fields, fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte(`{"amount":11900}`), payload)

	payload, hit, err = c.GetOrFetch(ctx, "extractor", fields, fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte(`{"amount":11900}`), payload)
	assert.Equal(t, 1, calls)
}

func TestGetOrFetchDoesNotCacheErrors(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()
	fields := map[string]string{"sha256": "abc"}

	calls := 0
	_, _, err := c.GetOrFetch(ctx, "extractor", fields, func(context.Context) ([]byte, error) {
		calls++
		return nil, fmt.Errorf("upstream unavailable")
	})
	require.Error(t, err)

	_, hit, err := c.GetOrFetch(ctx, "extractor", fields, func(context.Context) ([]byte, error) {
		calls++
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "extractor", "extractor:k", []byte("v")))

	// Move the clock past the TTL. The hot tier still holds the payload,
	// but the durable tier's expiry wins and the stale copy is evicted.
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, hit, err := c.Get(ctx, "extractor:k")
	require.NoError(t, err)
	assert.False(t, hit)

	_, stillHot := c.hot.Get("extractor:k")
	assert.False(t, stillHot, "stale hot copy is dropped on the miss")
}

func TestSweep(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "extractor", "extractor:a", []byte("1")))
	require.NoError(t, c.Put(ctx, "extractor", "extractor:b", []byte("2")))

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
