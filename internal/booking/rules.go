package booking

import (
	"sort"
	"strings"

	"document-reconciliation-service/internal/enrich"
	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/normalize"

	"github.com/shopspring/decimal"
)

// SKR04 accounts the engine books against.
const (
	AccountBank          = "1200"
	AccountPayPal        = "1361"
	AccountStripe        = "1362"
	AccountMollie        = "1363"
	AccountRevenue19     = "8400"
	AccountRevenue7      = "8300"
	AccountRevenueExempt = "8120"
	AccountOtherExpense  = "6840"
)

// German VAT rates in percent.
const (
	TaxRateStandard = 19
	TaxRateReduced  = 7
)

// ClearingAccount maps a transaction source to its settlement account.
func ClearingAccount(source models.SourceType) string {
	switch source {
	case models.SourcePayPal:
		return AccountPayPal
	case models.SourceStripe:
		return AccountStripe
	case models.SourceMollie:
		return AccountMollie
	default:
		return AccountBank
	}
}

// RevenueAccount picks the revenue account for a VAT rate.
func RevenueAccount(taxRatePercent int) string {
	switch taxRatePercent {
	case TaxRateStandard:
		return AccountRevenue19
	case TaxRateReduced:
		return AccountRevenue7
	default:
		return AccountRevenueExempt
	}
}

// TaxSplit derives net and tax from a gross minor-unit amount at the
// given rate. The net is rounded to a whole minor unit; the tax absorbs
// the rounding so net+tax always equals gross.
func TaxSplit(grossMinor int64, taxRatePercent int) (netMinor, taxMinor int64) {
	if taxRatePercent <= 0 {
		return grossMinor, 0
	}
	gross := decimal.New(grossMinor, 0)
	divisor := decimal.New(int64(100+taxRatePercent), -2)
	net := gross.DivRound(divisor, 0)
	netMinor = net.IntPart()
	return netMinor, grossMinor - netMinor
}

// DetectTaxRate infers the VAT rate from a gross amount and the tax
// stated on the document, tolerating one minor unit of rounding. Zero
// means no rate could be confirmed.
func DetectTaxRate(grossMinor, taxMinor int64) int {
	if grossMinor == 0 || taxMinor == 0 {
		return 0
	}
	for _, rate := range []int{TaxRateStandard, TaxRateReduced} {
		_, expected := TaxSplit(grossMinor, rate)
		diff := expected - taxMinor
		if diff < 0 {
			diff = -diff
		}
		if diff <= 1 {
			return rate
		}
	}
	return 0
}

// expenseCategories maps keyword sets to their typical SKR04 expense
// accounts.
var expenseCategories = []struct {
	category string
	account  string
	keywords []string
}{
	{"office_supplies", "4930", []string{"buro", "office", "papier", "stift", "toner", "druckerpapier"}},
	{"software", "6835", []string{"software", "lizenz", "saas", "cloud", "adobe", "microsoft", "slack"}},
	{"internet", "6815", []string{"internet", "dsl", "hosting", "domain", "server", "aws"}},
	{"phone", "6805", []string{"telefon", "mobilfunk", "handy", "mobile", "vodafone", "telekom"}},
	{"rent", "4200", []string{"miete", "rent", "nebenkosten", "heizung"}},
	{"travel", "6673", []string{"reise", "hotel", "bahn", "flug", "taxi", "mietwagen"}},
	{"marketing", "6600", []string{"werbung", "marketing", "anzeige", "facebook", "google ads"}},
	{"professional_services", "6825", []string{"beratung", "rechtsanwalt", "steuerberater", "notar", "consulting"}},
}

// SuggestExpenseAccount proposes an expense account from keyword hits in
// the description and vendor name. Each keyword hit adds 0.3 confidence,
// capped at 1.0. With no hits it falls back to the generic operating
// expense account at low confidence.
func SuggestExpenseAccount(description, vendor string) *enrich.AccountSuggestion {
	searchText := normalize.Text(description + " " + vendor)

	type hit struct {
		account    string
		category   string
		confidence float64
	}
	var hits []hit
	for _, cat := range expenseCategories {
		score := 0.0
		for _, kw := range cat.keywords {
			if strings.Contains(searchText, kw) {
				score += 0.3
			}
		}
		if score > 0 {
			if score > 1.0 {
				score = 1.0
			}
			hits = append(hits, hit{cat.account, cat.category, score})
		}
	}

	if len(hits) == 0 {
		return &enrich.AccountSuggestion{
			DebitAccount: AccountOtherExpense,
			Confidence:   0.3,
			Rationale:    "no category keywords matched",
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].confidence > hits[j].confidence })
	best := hits[0]
	return &enrich.AccountSuggestion{
		DebitAccount: best.account,
		Confidence:   best.confidence,
		Rationale:    "keyword match: " + best.category,
	}
}
