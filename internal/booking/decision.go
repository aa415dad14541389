package booking

import "fmt"

// Decision is the outcome class of the booking decision engine.
type Decision string

const (
	// DecisionAutoBook means confidence is high enough to book without a
	// human in the loop.
	DecisionAutoBook Decision = "auto_book"
	// DecisionReview means a plausible match exists but needs human
	// confirmation.
	DecisionReview Decision = "review"
	// DecisionManual means no usable match; a human books from scratch.
	DecisionManual Decision = "manual"
)

// Thresholds are the confidence cut-offs for the decision. AutoBook is
// inclusive: a confidence exactly at the threshold auto-books.
type Thresholds struct {
	AutoBook float64 `json:"auto_book"`
	Review   float64 `json:"review"`
}

// DefaultThresholds returns the production decision thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoBook: 0.85, Review: 0.50}
}

// Validate checks threshold consistency.
func (t Thresholds) Validate() error {
	if t.AutoBook <= 0 || t.AutoBook > 1 {
		return fmt.Errorf("auto-book threshold must be in (0, 1]: %f", t.AutoBook)
	}
	if t.Review < 0 || t.Review >= t.AutoBook {
		return fmt.Errorf("review threshold must be in [0, auto-book): %f", t.Review)
	}
	return nil
}

// Decide classifies a match outcome. It is a pure function: identical
// inputs always yield the identical decision.
//
// Ambiguous matches and failed extractions route to manual regardless of
// confidence: when the top candidates are effectively tied the score says
// nothing about which one is right, so a human picks from scratch.
func Decide(confidence float64, ambiguous, extractionFailed bool, t Thresholds) Decision {
	if extractionFailed || ambiguous {
		return DecisionManual
	}
	switch {
	case confidence >= t.AutoBook:
		return DecisionAutoBook
	case confidence >= t.Review:
		return DecisionReview
	default:
		return DecisionManual
	}
}
