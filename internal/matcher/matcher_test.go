package matcher

import (
	"testing"
	"time"

	"document-reconciliation-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bankTx(id string, date time.Time, amountMinor int64, partner, description string) *models.Transaction {
	tx := models.NewTransaction(models.SourceBankCSV, date, amountMinor, description)
	tx.ID = id
	tx.PartnerName = partner
	return tx
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.AmountWeight = 0.5
	assert.Error(t, bad.Validate(), "weights no longer sum to 1")

	bad = DefaultConfig()
	bad.WindowDays = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.TieEpsilon = 1.0
	assert.Error(t, bad.Validate())
}

func TestAmountScore(t *testing.T) {
	tests := []struct {
		name     string
		tx, doc  int64
		expected float64
	}{
		{"exact", 11900, 11900, 1.0},
		{"exact ignoring sign", -11900, 11900, 1.0},
		{"within a tenth percent", 1000000, 1000005, 0.99},
		{"within one percent", 10000, 10050, 0.95},
		{"within two percent", 10000, 10150, 0.85},
		{"within five percent", 10000, 10400, 0.7},
		{"within ten percent", 10000, 10900, 0.5},
		{"zero document amount", 10000, 0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, AmountScore(tt.tx, tt.doc), 1e-9)
		})
	}
}

func TestDateScore(t *testing.T) {
	doc := day(2025, 1, 14)
	tests := []struct {
		name     string
		txDate   time.Time
		expected float64
	}{
		{"same day", day(2025, 1, 14), 1.0},
		{"one day", day(2025, 1, 15), 0.95},
		{"three days", day(2025, 1, 11), 0.9},
		{"a week", day(2025, 1, 21), 0.8},
		{"two weeks", day(2025, 1, 28), 0.6},
		{"a month", day(2025, 2, 13), 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DateScore(tt.txDate, doc), 1e-9)
		})
	}
}

func TestTextSimilarity(t *testing.T) {
	// Legal form and diacritics do not count as differences.
	assert.InDelta(t, 1.0, TextSimilarity("ACME GmbH", "acme"), 1e-9)
	assert.InDelta(t, 1.0, TextSimilarity("Café Krüger", "cafe kruger"), 1e-9)

	// Containment after normalization.
	assert.InDelta(t, 0.9, TextSimilarity("ACME Software", "Zahlung ACME Software Wartung"), 1e-9)

	assert.Equal(t, 0.0, TextSimilarity("", "anything"))
	assert.Greater(t, TextSimilarity("Mueller Bau", "Muller Bau"), 0.8)
	assert.Less(t, TextSimilarity("Hosting Provider", "Steuerberatung Nord"), 0.5)
}

func TestReferenceScore(t *testing.T) {
	assert.InDelta(t, 1.0, ReferenceScore("Zahlung RE-2025-001 danke", "RE-2025-001"), 1e-9)
	assert.InDelta(t, 0.95, ReferenceScore("Zahlung 2025-001 danke", "RE-2025-001"), 1e-9)
	assert.InDelta(t, 0.8, ReferenceScore("Verwendungszweck 9876 Rest", "AB-9876-X"), 1e-9)
	assert.Equal(t, 0.0, ReferenceScore("no reference here", "RE-2025-001"))
	assert.Equal(t, 0.0, ReferenceScore("", "RE-2025-001"))
	assert.Equal(t, 0.0, ReferenceScore("some text", ""))
}

func TestScorePerfectMatch(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	tx := bankTx("tx-1", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung RE-2025-001")
	c := m.Score(tx, Query{
		AmountMinor: 11900,
		Date:        day(2025, 1, 14),
		VendorName:  "ACME",
		Reference:   "RE-2025-001",
	})

	assert.InDelta(t, 1.0, c.Confidence, 1e-9)
	assert.Equal(t, "excellent", c.Band)
	assert.InDelta(t, 1.0, c.Signals[models.SignalAmount], 1e-9)
	assert.InDelta(t, 1.0, c.Signals[models.SignalDate], 1e-9)
	assert.InDelta(t, 1.0, c.Signals[models.SignalVendor], 1e-9)
	assert.InDelta(t, 1.0, c.Signals[models.SignalReference], 1e-9)
}

func TestScoreMissingFieldsAreNeutral(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	tx := bankTx("tx-1", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung RE-2025-001")

	// Amount only: 0.40 from amount plus the 0.1 neutral date term.
	c := m.Score(tx, Query{AmountMinor: 11900})
	assert.InDelta(t, 0.5, c.Confidence, 1e-9)
	_, hasVendor := c.Signals[models.SignalVendor]
	assert.False(t, hasVendor)
	_, hasDate := c.Signals[models.SignalDate]
	assert.False(t, hasDate)
}

func TestRankIsDeterministic(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	q := Query{AmountMinor: 11900, Date: day(2025, 1, 14), VendorName: "ACME"}
	txs := []*models.Transaction{
		bankTx("tx-c", day(2025, 1, 20), -11900, "ACME GmbH", "Abschlag"),
		bankTx("tx-a", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung"),
		bankTx("tx-b", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung"),
	}

	first := m.Rank(txs, q)
	require.Len(t, first, 3)

	// Best score first; equal scores break on date then id.
	assert.Equal(t, "tx-a", first[0].Transaction.ID)
	assert.Equal(t, "tx-b", first[1].Transaction.ID)
	assert.Equal(t, "tx-c", first[2].Transaction.ID)

	// Input order must not leak into the result.
	reversed := m.Rank([]*models.Transaction{txs[1], txs[2], txs[0]}, q)
	for i := range first {
		assert.Equal(t, first[i].Transaction.ID, reversed[i].Transaction.ID)
	}
}

func TestRankDropsWeakCandidates(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	q := Query{AmountMinor: 11900, Date: day(2025, 1, 14), VendorName: "ACME"}
	txs := []*models.Transaction{
		bankTx("tx-good", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung"),
		bankTx("tx-weak", day(2025, 6, 1), -50, "Unrelated Shop", "Kaffee"),
	}

	ranked := m.Rank(txs, q)
	require.Len(t, ranked, 1)
	assert.Equal(t, "tx-good", ranked[0].Transaction.ID)
}

func TestBestAmbiguousOnNearTie(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	q := Query{AmountMinor: 11900, Date: day(2025, 1, 14), VendorName: "ACME"}

	// Two equally plausible transactions: identical score, zero gap.
	twins := []*models.Transaction{
		bankTx("tx-1", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung"),
		bankTx("tx-2", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung"),
	}
	best, ambiguous := m.Best(twins, q)
	require.NotNil(t, best)
	assert.True(t, ambiguous)
	assert.Equal(t, "tx-1", best.Transaction.ID)

	// A small but nonzero gap inside the tie margin is still ambiguous.
	near := []*models.Transaction{
		bankTx("tx-1", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung"),
		bankTx("tx-2", day(2025, 1, 15), -11900, "ACME GmbH", "Rechnung"),
	}
	best, ambiguous = m.Best(near, q)
	require.NotNil(t, best)
	assert.True(t, ambiguous)
	assert.Equal(t, "tx-1", best.Transaction.ID)

	// A clear winner with a wide gap is unambiguous.
	clear := []*models.Transaction{
		bankTx("tx-1", day(2025, 1, 14), -11900, "ACME GmbH", "Rechnung"),
		bankTx("tx-2", day(2025, 2, 10), -11900, "Other Vendor", "Sonstiges"),
	}
	best, ambiguous = m.Best(clear, q)
	require.NotNil(t, best)
	assert.False(t, ambiguous)
	assert.Equal(t, "tx-1", best.Transaction.ID)

	// Empty candidate set.
	best, ambiguous = m.Best(nil, q)
	assert.Nil(t, best)
	assert.False(t, ambiguous)
}

func TestWindow(t *testing.T) {
	cfg := DefaultConfig()
	from, to := cfg.Window(day(2025, 1, 31))
	assert.Equal(t, day(2025, 1, 1), from)
	assert.Equal(t, day(2025, 3, 2), to)
}
