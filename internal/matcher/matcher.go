// Package matcher scores imported transactions against the fields
// extracted from a document and picks the best match.
//
// Four signals contribute to a candidate's confidence: amount closeness,
// booking date proximity, vendor name similarity, and invoice reference
// hits. The combination is a weighted sum; weights and the ambiguity
// epsilon live in Config. Matching is fully deterministic: the same
// inputs always produce the same ranking and the same decision.
package matcher

import (
	"math"
	"sort"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/logger"
)

// Query carries the document-side fields to match against. A zero Date
// or empty string means the field was not extracted; such signals score
// neutrally rather than against the candidate.
type Query struct {
	AmountMinor int64
	Date        time.Time
	VendorName  string
	Reference   string
}

// Matcher scores and ranks transactions for a query.
type Matcher struct {
	cfg *Config
	log logger.Logger
}

// New creates a Matcher. A nil config uses defaults.
func New(cfg *Config) (*Matcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{
		cfg: cfg.Clone(),
		log: logger.WithComponent("matcher"),
	}, nil
}

// Config returns a copy of the active configuration.
func (m *Matcher) Config() *Config {
	return m.cfg.Clone()
}

// Score computes the weighted confidence of one transaction for the
// query, with the per-signal contributions broken out.
func (m *Matcher) Score(tx *models.Transaction, q Query) *models.MatchCandidate {
	signals := make(map[models.MatchSignal]float64)
	score := 0.0

	amountScore := AmountScore(tx.AmountMinor, q.AmountMinor)
	signals[models.SignalAmount] = amountScore
	score += amountScore * m.cfg.AmountWeight

	if !q.Date.IsZero() {
		dateScore := DateScore(tx.BookingDate, q.Date)
		signals[models.SignalDate] = dateScore
		score += dateScore * m.cfg.DateWeight
	} else {
		// Unknown document date: neutral contribution instead of a penalty.
		score += 0.1
	}

	if q.VendorName != "" {
		vendorScore := math.Max(
			TextSimilarity(q.VendorName, tx.PartnerName),
			TextSimilarity(q.VendorName, tx.Description),
		)
		signals[models.SignalVendor] = vendorScore
		score += vendorScore * m.cfg.VendorWeight
	}

	if q.Reference != "" {
		refScore := ReferenceScore(tx.Description, q.Reference)
		signals[models.SignalReference] = refScore
		score += refScore * m.cfg.ReferenceWeight
	}

	if score > 1.0 {
		score = 1.0
	}

	return &models.MatchCandidate{
		Transaction: tx,
		Confidence:  score,
		Signals:     signals,
		Band:        models.ConfidenceBand(score),
	}
}

// Rank scores every transaction and returns the candidates above the
// minimum score, best first. Ties break on booking date (older first)
// and then transaction id, so the order is stable across runs.
func (m *Matcher) Rank(txs []*models.Transaction, q Query) []*models.MatchCandidate {
	var candidates []*models.MatchCandidate
	for _, tx := range txs {
		c := m.Score(tx, q)
		if c.Confidence > m.cfg.MinScore {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if !candidates[i].Transaction.BookingDate.Equal(candidates[j].Transaction.BookingDate) {
			return candidates[i].Transaction.BookingDate.Before(candidates[j].Transaction.BookingDate)
		}
		return candidates[i].Transaction.ID < candidates[j].Transaction.ID
	})
	return candidates
}

// Best returns the single best candidate, or nil when there is none. The
// ambiguous flag is set when the runner-up scores within TieEpsilon of
// the winner; such matches must not be booked automatically.
func (m *Matcher) Best(txs []*models.Transaction, q Query) (best *models.MatchCandidate, ambiguous bool) {
	ranked := m.Rank(txs, q)
	if len(ranked) == 0 {
		return nil, false
	}
	best = ranked[0]
	if len(ranked) > 1 && best.Confidence-ranked[1].Confidence < m.cfg.TieEpsilon {
		m.log.WithField("best", best.Transaction.ID).
			WithField("runner_up", ranked[1].Transaction.ID).
			WithField("gap", best.Confidence-ranked[1].Confidence).
			Debug("ambiguous match")
		return best, true
	}
	return best, false
}

// AmountScore compares two minor-unit amounts by magnitude. Payments are
// often negative on the transaction side while documents state positive
// totals, so signs are ignored. The score steps down with the relative
// difference.
func AmountScore(transactionMinor, documentMinor int64) float64 {
	txAbs := math.Abs(float64(transactionMinor))
	docAbs := math.Abs(float64(documentMinor))

	if docAbs == 0 {
		return 0.0
	}
	if txAbs == docAbs {
		return 1.0
	}

	diff := math.Abs(txAbs-docAbs) / docAbs
	switch {
	case diff < 0.001:
		return 0.99
	case diff < 0.01:
		return 0.95
	case diff < 0.02:
		return 0.85
	case diff < 0.05:
		return 0.7
	case diff < 0.1:
		return 0.5
	default:
		return math.Max(0, 1-diff)
	}
}

// DateScore compares booking and document dates with a stepped decay,
// flattening into a linear tail over a year.
func DateScore(transactionDate, documentDate time.Time) float64 {
	days := math.Abs(transactionDate.Sub(documentDate).Hours() / 24)
	switch {
	case days == 0:
		return 1.0
	case days <= 1:
		return 0.95
	case days <= 3:
		return 0.9
	case days <= 7:
		return 0.8
	case days <= 14:
		return 0.6
	case days <= 30:
		return 0.4
	default:
		return math.Max(0, 1-days/365)
	}
}
