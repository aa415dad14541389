package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name             string
		confidence       float64
		ambiguous        bool
		extractionFailed bool
		expected         Decision
	}{
		{"high confidence auto-books", 0.95, false, false, DecisionAutoBook},
		{"threshold is inclusive", 0.85, false, false, DecisionAutoBook},
		{"just below threshold reviews", 0.8499, false, false, DecisionReview},
		{"review threshold is inclusive", 0.50, false, false, DecisionReview},
		{"below review is manual", 0.49, false, false, DecisionManual},
		{"zero confidence is manual", 0.0, false, false, DecisionManual},
		{"ambiguity is always manual", 0.99, true, false, DecisionManual},
		{"ambiguous tie above review threshold is manual", 0.80, true, false, DecisionManual},
		{"ambiguous and weak is manual", 0.40, true, false, DecisionManual},
		{"failed extraction is always manual", 0.99, false, true, DecisionManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decide(tt.confidence, tt.ambiguous, tt.extractionFailed, th))
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	th := DefaultThresholds()
	for i := 0; i < 100; i++ {
		assert.Equal(t, DecisionAutoBook, Decide(0.85, false, false, th))
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{AutoBook: 0, Review: 0}.Validate())
	assert.Error(t, Thresholds{AutoBook: 1.1, Review: 0.5}.Validate())
	assert.Error(t, Thresholds{AutoBook: 0.85, Review: 0.85}.Validate())
	assert.Error(t, Thresholds{AutoBook: 0.85, Review: -0.1}.Validate())
}

func TestTaxSplit(t *testing.T) {
	tests := []struct {
		gross   int64
		rate    int
		wantNet int64
		wantTax int64
	}{
		{11900, 19, 10000, 1900},
		{10700, 7, 10000, 700},
		{10000, 0, 10000, 0},
		// Rounding: net+tax must always equal gross.
		{9999, 19, 8403, 1596},
	}
	for _, tt := range tests {
		net, tax := TaxSplit(tt.gross, tt.rate)
		assert.Equal(t, tt.wantNet, net, "gross %d at %d%%", tt.gross, tt.rate)
		assert.Equal(t, tt.wantTax, tax, "gross %d at %d%%", tt.gross, tt.rate)
		assert.Equal(t, tt.gross, net+tax)
	}
}

func TestDetectTaxRate(t *testing.T) {
	assert.Equal(t, 19, DetectTaxRate(11900, 1900))
	assert.Equal(t, 7, DetectTaxRate(10700, 700))
	assert.Equal(t, 0, DetectTaxRate(10000, 0))
	assert.Equal(t, 0, DetectTaxRate(11900, 500), "tax does not fit any known rate")
	// One minor unit of rounding slack.
	assert.Equal(t, 19, DetectTaxRate(9999, 1596))
}

func TestClearingAccount(t *testing.T) {
	assert.Equal(t, AccountPayPal, ClearingAccount("PAYPAL"))
	assert.Equal(t, AccountStripe, ClearingAccount("STRIPE"))
	assert.Equal(t, AccountMollie, ClearingAccount("MOLLIE"))
	assert.Equal(t, AccountBank, ClearingAccount("BANK_CSV"))
	assert.Equal(t, AccountBank, ClearingAccount("DATEV"))
}

func TestSuggestExpenseAccount(t *testing.T) {
	s := SuggestExpenseAccount("Adobe Creative Cloud Lizenz", "Adobe Inc")
	assert.Equal(t, "6835", s.DebitAccount)
	assert.Greater(t, s.Confidence, 0.5, "multiple keyword hits stack")

	s = SuggestExpenseAccount("Hotel und Bahn Dienstreise", "")
	assert.Equal(t, "6673", s.DebitAccount)

	// No keyword hits fall back to the generic expense account.
	s = SuggestExpenseAccount("Sonstiges", "Unbekannt")
	assert.Equal(t, AccountOtherExpense, s.DebitAccount)
	assert.InDelta(t, 0.3, s.Confidence, 1e-9)
}
