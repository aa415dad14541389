package store

import (
	"context"
	"testing"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTransaction(dedupKey string) *models.Transaction {
	tx := models.NewTransaction(models.SourceBankCSV,
		time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), 11900, "Rechnung RE-2025-001")
	tx.PartnerName = "ACME GmbH"
	tx.DedupKey = dedupKey
	return tx
}

func TestSaveImportBatchIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := models.NewImportBatch(models.SourceBankCSV, "Konto_1200_140125_093000.csv")
	txs := []*models.Transaction{testTransaction("key-1"), testTransaction("key-2")}
	require.NoError(t, s.SaveImportBatch(ctx, batch, txs))
	assert.Equal(t, 2, batch.Created)
	assert.Equal(t, 0, batch.Duplicates)

	// Re-importing the same rows creates nothing new.
	batch2 := models.NewImportBatch(models.SourceBankCSV, "Konto_1200_140125_093000.csv")
	txs2 := []*models.Transaction{testTransaction("key-1"), testTransaction("key-2"), testTransaction("key-3")}
	require.NoError(t, s.SaveImportBatch(ctx, batch2, txs2))
	assert.Equal(t, 1, batch2.Created)
	assert.Equal(t, 2, batch2.Duplicates)

	got, err := s.GetImportBatch(ctx, batch2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Created)
	assert.Equal(t, 2, got.Duplicates)
}

func TestUnmatchedInRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := models.NewImportBatch(models.SourceBankCSV, "konto.csv")
	inRange := testTransaction("in-range")
	before := testTransaction("before")
	before.BookingDate = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveImportBatch(ctx, batch, []*models.Transaction{inRange, before}))

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	got, err := s.UnmatchedInRange(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "in-range", got[0].DedupKey)

	// Matched transactions drop out of the candidate set.
	require.NoError(t, s.MarkTransactionMatched(ctx, inRange.ID, "booking-1"))
	got, err = s.UnmatchedInRange(ctx, from, to)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMarkTransactionMatchedConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := models.NewImportBatch(models.SourceBankCSV, "konto.csv")
	tx := testTransaction("key-1")
	require.NoError(t, s.SaveImportBatch(ctx, batch, []*models.Transaction{tx}))

	require.NoError(t, s.MarkTransactionMatched(ctx, tx.ID, "booking-1"))

	err := s.MarkTransactionMatched(ctx, tx.ID, "booking-2")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConflict))
}

func createTestDocument(t *testing.T, s *Store) *models.Document {
	t.Helper()
	doc := models.NewDocument("invoice.pdf", []byte("%PDF-1.4 test"))
	require.NoError(t, s.CreateDocument(context.Background(), doc))
	return doc
}

func TestDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := createTestDocument(t, s)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, models.DocTypeUnknown, got.DocType)

	require.NoError(t, s.UpdateDocumentType(ctx, doc.ID, models.DocTypeInvoice))
	got, err = s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocTypeInvoice, got.DocType)

	_, err = s.GetDocument(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestCreateJobOneLivePerDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s)

	job := models.NewProcessingJob(doc.ID, 5, 3)
	require.NoError(t, s.CreateJob(ctx, job))

	dup := models.NewProcessingJob(doc.ID, 2, 3)
	err := s.CreateJob(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDuplicateJob))

	// Once the first job is terminal a new one may be enqueued.
	claimed, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, s.CompleteJob(ctx, claimed.ID))
	require.NoError(t, s.CreateJob(ctx, models.NewProcessingJob(doc.ID, 2, 3)))
}

func TestClaimOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lowOld := models.NewProcessingJob(createTestDocument(t, s).ID, 1, 3)
	lowOld.CreatedAt = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	highNew := models.NewProcessingJob(createTestDocument(t, s).ID, 9, 3)
	highNew.CreatedAt = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	lowNew := models.NewProcessingJob(createTestDocument(t, s).ID, 1, 3)
	lowNew.CreatedAt = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	for _, j := range []*models.ProcessingJob{lowOld, highNew, lowNew} {
		require.NoError(t, s.CreateJob(ctx, j))
	}

	// Priority beats age; equal priority goes oldest first.
	var order []string
	for {
		j, err := s.ClaimNextJob(ctx)
		require.NoError(t, err)
		if j == nil {
			break
		}
		order = append(order, j.ID)
		require.NoError(t, s.CompleteJob(ctx, j.ID))
	}
	assert.Equal(t, []string{highNew.ID, lowOld.ID, lowNew.ID}, order)
}

func TestClaimIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, models.NewProcessingJob(createTestDocument(t, s).ID, 0, 3)))

	first, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, models.JobProcessing, first.Status)
	require.NotNil(t, first.StartedAt)
	require.NotNil(t, first.HeartbeatAt)

	second, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestFailJobRetryBudget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := models.NewProcessingJob(createTestDocument(t, s).ID, 0, 2)
	require.NoError(t, s.CreateJob(ctx, job))

	// Two failures requeue, the third is terminal.
	for attempt := 0; attempt < 2; attempt++ {
		claimed, err := s.ClaimNextJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		retrying, err := s.FailJob(ctx, claimed.ID, "extraction timed out")
		require.NoError(t, err)
		assert.True(t, retrying)
	}

	claimed, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 2, claimed.RetryCount)

	retrying, err := s.FailJob(ctx, claimed.ID, "extraction timed out")
	require.NoError(t, err)
	assert.False(t, retrying)

	final, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Equal(t, "extraction timed out", final.LastError)
	require.NotNil(t, final.CompletedAt)
}

func TestFailJobTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := models.NewProcessingJob(createTestDocument(t, s).ID, 0, 3)
	require.NoError(t, s.CreateJob(ctx, job))

	claimed, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, s.FailJobTerminal(ctx, claimed.ID, "document content unreadable"))

	final, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Equal(t, 0, final.RetryCount, "terminal failure spends no retries")
	assert.Equal(t, "document content unreadable", final.LastError)

	// Only a processing job can terminal-fail.
	err = s.FailJobTerminal(ctx, job.ID, "again")
	require.Error(t, err)
}

func TestCancelJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending := models.NewProcessingJob(createTestDocument(t, s).ID, 0, 3)
	require.NoError(t, s.CreateJob(ctx, pending))
	require.NoError(t, s.CancelJob(ctx, pending.ID))

	got, err := s.GetJob(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.True(t, got.Cancelled)

	// A cancelled pending job is never claimed.
	j, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)

	processing := models.NewProcessingJob(createTestDocument(t, s).ID, 0, 3)
	require.NoError(t, s.CreateJob(ctx, processing))
	claimed, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, s.CancelJob(ctx, claimed.ID))
	cancelled, err := s.IsJobCancelled(ctx, claimed.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Still processing until the worker observes the flag.
	got, err = s.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, got.Status)
}

func TestReleaseStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := models.NewProcessingJob(createTestDocument(t, s).ID, 0, 3)
	require.NoError(t, s.CreateJob(ctx, job))
	claimed, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// A fresh heartbeat survives the sweep.
	n, err := s.ReleaseStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Against a future cutoff the heartbeat counts as expired.
	n, err = s.ReleaseStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "worker heartbeat expired", got.LastError)
}

func testBooking(documentID string) *models.Booking {
	b := models.NewBooking(documentID, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), 11900, "1200", "1361")
	b.Confidence = 0.91
	b.AutoBooked = true
	return b
}

func TestCreateBookingDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s)

	require.NoError(t, s.CreateBooking(ctx, testBooking(doc.ID)))

	err := s.CreateBooking(ctx, testBooking(doc.ID))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDuplicateBooking))

	got, err := s.GetBookingByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(11900), got.AmountMinor)
	assert.True(t, got.AutoBooked)

	none, err := s.GetBookingByDocument(ctx, "other-doc")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCacheEntryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expiry := now.Add(time.Hour)
	entry := &models.CacheEntry{
		Key:       "extractor:abc",
		Service:   "extractor",
		Payload:   []byte(`{"amount":11900}`),
		CreatedAt: now,
		ExpiresAt: &expiry,
	}
	require.NoError(t, s.PutCacheEntry(ctx, entry))

	got, err := s.GetCacheEntry(ctx, "extractor:abc", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Payload, got.Payload)
	assert.Equal(t, int64(1), got.HitCount)

	// Expired entries read as a miss and are removed.
	got, err = s.GetCacheEntry(ctx, "extractor:abc", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetCacheEntry(ctx, "extractor:abc", now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSweepCacheEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, s.PutCacheEntry(ctx, &models.CacheEntry{Key: "a", Service: "x", Payload: []byte("1"), CreatedAt: now, ExpiresAt: &past}))
	require.NoError(t, s.PutCacheEntry(ctx, &models.CacheEntry{Key: "b", Service: "x", Payload: []byte("2"), CreatedAt: now, ExpiresAt: &future}))
	require.NoError(t, s.PutCacheEntry(ctx, &models.CacheEntry{Key: "c", Service: "x", Payload: []byte("3"), CreatedAt: now}))

	n, err := s.SweepCacheEntries(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Entries without expiry never sweep.
	got, err := s.GetCacheEntry(ctx, "c", now)
	require.NoError(t, err)
	require.NotNil(t, got)
}
