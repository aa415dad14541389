package matcher

import (
	"fmt"
	"math"
	"time"
)

// Config tunes the matching engine. The weights express how much each
// signal contributes to the combined confidence and must sum to 1.
type Config struct {
	AmountWeight    float64 `json:"amount_weight"`
	DateWeight      float64 `json:"date_weight"`
	VendorWeight    float64 `json:"vendor_weight"`
	ReferenceWeight float64 `json:"reference_weight"`

	// WindowDays bounds the candidate search to booking dates within
	// this many days of the document date, in both directions.
	WindowDays int `json:"window_days"`

	// TieEpsilon is the score gap below which the two best candidates
	// count as indistinguishable, forcing a manual decision.
	TieEpsilon float64 `json:"tie_epsilon"`

	// MinScore is the floor below which a transaction is not considered
	// a candidate at all.
	MinScore float64 `json:"min_score"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		AmountWeight:    0.40,
		DateWeight:      0.20,
		VendorWeight:    0.25,
		ReferenceWeight: 0.15,
		WindowDays:      30,
		TieEpsilon:      0.02,
		MinScore:        0.30,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	for name, w := range map[string]float64{
		"amount_weight":    c.AmountWeight,
		"date_weight":      c.DateWeight,
		"vendor_weight":    c.VendorWeight,
		"reference_weight": c.ReferenceWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be between 0 and 1: %f", name, w)
		}
	}

	sum := c.AmountWeight + c.DateWeight + c.VendorWeight + c.ReferenceWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("signal weights must sum to 1.0, got %f", sum)
	}

	if c.WindowDays <= 0 {
		return fmt.Errorf("window days must be positive: %d", c.WindowDays)
	}
	if c.TieEpsilon < 0 || c.TieEpsilon >= 1 {
		return fmt.Errorf("tie epsilon must be in [0, 1): %f", c.TieEpsilon)
	}
	if c.MinScore < 0 || c.MinScore >= 1 {
		return fmt.Errorf("min score must be in [0, 1): %f", c.MinScore)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Window returns the candidate date range around a document date.
func (c *Config) Window(date time.Time) (from, to time.Time) {
	d := time.Duration(c.WindowDays) * 24 * time.Hour
	return date.Add(-d), date.Add(d)
}
