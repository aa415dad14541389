package service

import (
	"context"
	"testing"
	"time"

	"document-reconciliation-service/internal/enrich"
	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/store"
	"document-reconciliation-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankExportSample = `REF001;14.01.2025;1.190,00;14.01.2025;;ACME GmbH;Rechnung RE-2025-001;1200
REF002;15.01.2025;-89,90;15.01.2025;;Hosting Provider Ltd;Monatliche Gebuehr;1200
REF003;16.01.2025;50,00;16.01.2025;;Kunde A;Teilzahlung;1200
REF004;17.01.2025;50,00;17.01.2025;;Kunde A;Teilzahlung zwei;1200`

type serviceFixture struct {
	store     *store.Store
	extractor *enrich.StaticExtractor
	svc       *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	extractor := enrich.NewStaticExtractor()
	svc, err := New(s, extractor, nil, Options{})
	require.NoError(t, err)

	return &serviceFixture{store: s, extractor: extractor, svc: svc}
}

func (f *serviceFixture) importSample(t *testing.T) *ImportResult {
	t.Helper()
	result, err := f.svc.ImportFile(context.Background(),
		"Konto_1200_140125_093000.csv", []byte(bankExportSample), "")
	require.NoError(t, err)
	return result
}

func (f *serviceFixture) invoiceDocument(t *testing.T) *models.Document {
	t.Helper()
	doc, err := f.svc.UploadDocument(context.Background(), "invoice.pdf", []byte("%PDF-1.4 invoice"))
	require.NoError(t, err)
	f.extractor.SetFields(doc.ID, &enrich.ExtractedFields{
		DocType:       models.DocTypeInvoice,
		InvoiceNumber: "RE-2025-001",
		IssueDate:     time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
		AmountMinor:   119000,
		TaxMinor:      19000,
		VendorName:    "ACME GmbH",
	})
	return doc
}

func TestImportFileIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)

	first := f.importSample(t)
	assert.Equal(t, models.SourceBankCSV, first.Batch.Source)
	assert.Equal(t, 4, first.Batch.Created)
	assert.Equal(t, 0, first.Batch.Duplicates)
	assert.Nil(t, first.RowErrors)

	second := f.importSample(t)
	assert.Equal(t, 0, second.Batch.Created)
	assert.Equal(t, 4, second.Batch.Duplicates)
	assert.NotEqual(t, first.Batch.ID, second.Batch.ID, "each import gets its own batch record")
}

func TestImportFileRejectsWrongHint(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.ImportFile(context.Background(),
		"Konto_1200_140125_093000.csv", []byte(bankExportSample), models.SourceStripe)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeWrongFormat))
}

func TestImportFileReportsRowErrors(t *testing.T) {
	f := newServiceFixture(t)

	sample := "REF001;14.01.2025;kaputt;14.01.2025;;Partner;Zweck;1200\n" +
		"REF002;14.01.2025;10,00;14.01.2025;;Partner;Zweck;1200"
	result, err := f.svc.ImportFile(context.Background(),
		"Konto_1200_140125_093000.csv", []byte(sample), "")
	require.NoError(t, err, "row errors never fail the batch")

	assert.Equal(t, 1, result.Batch.Created)
	assert.Equal(t, 1, result.Batch.RowErrors)
	require.NotNil(t, result.RowErrors)
	assert.Equal(t, 1, result.RowErrors.Len())
}

func TestEnqueueDocumentChecksExistence(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.EnqueueDocument(context.Background(), "no-such-document", 5)
	require.Error(t, err)

	doc := f.invoiceDocument(t)
	job, err := f.svc.EnqueueDocument(context.Background(), doc.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)

	got, err := f.svc.JobStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = f.svc.EnqueueDocument(context.Background(), doc.ID, 5)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDuplicateJob))
}

func TestMatchSuggestionsRanksOpenTransactions(t *testing.T) {
	f := newServiceFixture(t)
	f.importSample(t)
	doc := f.invoiceDocument(t)

	candidates, err := f.svc.MatchSuggestions(context.Background(), doc.ID, 2)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.LessOrEqual(t, len(candidates), 2)

	best := candidates[0]
	assert.Equal(t, "ACME GmbH", best.Transaction.PartnerName)
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, best.Confidence, candidates[i].Confidence)
	}
}

func TestConfirmBookingConsumesTransaction(t *testing.T) {
	f := newServiceFixture(t)
	f.importSample(t)
	doc := f.invoiceDocument(t)
	ctx := context.Background()

	candidates, err := f.svc.MatchSuggestions(ctx, doc.ID, 1)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	txID := candidates[0].Transaction.ID

	b, err := f.svc.ConfirmBooking(ctx, doc.ID, txID)
	require.NoError(t, err)
	assert.False(t, b.AutoBooked)
	assert.Equal(t, txID, b.TransactionID)

	// The consumed transaction is gone from later suggestion lists.
	doc2 := f.invoiceDocument(t)
	candidates, err = f.svc.MatchSuggestions(ctx, doc2.ID, 10)
	require.NoError(t, err)
	for _, c := range candidates {
		assert.NotEqual(t, txID, c.Transaction.ID)
	}

	// And cannot back a second booking.
	_, err = f.svc.ConfirmBooking(ctx, doc2.ID, txID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConflict))
}

func TestConfirmBookingAllowsOverride(t *testing.T) {
	f := newServiceFixture(t)
	f.importSample(t)
	ctx := context.Background()

	// A partial payment matching the two 50,00 transactions about
	// equally well.
	doc, err := f.svc.UploadDocument(ctx, "teilzahlung.pdf", []byte("%PDF-1.4 teilzahlung"))
	require.NoError(t, err)
	f.extractor.SetFields(doc.ID, &enrich.ExtractedFields{
		DocType:     models.DocTypeInvoice,
		IssueDate:   time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC),
		AmountMinor: 5000,
		VendorName:  "Kunde A",
	})

	candidates, err := f.svc.MatchSuggestions(ctx, doc.ID, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(candidates), 2)

	// The human picks a weaker candidate; the stored confidence is the
	// computed score for that pair, not the best one's.
	weaker := candidates[len(candidates)-1]
	b, err := f.svc.ConfirmBooking(ctx, doc.ID, weaker.Transaction.ID)
	require.NoError(t, err)
	assert.InDelta(t, weaker.Confidence, b.Confidence, 1e-9)
	assert.Less(t, b.Confidence, candidates[0].Confidence)
}
