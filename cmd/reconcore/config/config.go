// Package config builds the component configurations for CLI runs,
// applying viper overrides on top of the package defaults.
package config

import (
	"time"

	"document-reconciliation-service/internal/booking"
	"document-reconciliation-service/internal/enrich"
	"document-reconciliation-service/internal/matcher"
	"document-reconciliation-service/internal/queue"

	"github.com/spf13/viper"
)

// CreateMatcherConfig creates the matching configuration with CLI
// overrides applied.
func CreateMatcherConfig() *matcher.Config {
	cfg := matcher.DefaultConfig()
	if viper.IsSet("window-days") {
		cfg.WindowDays = viper.GetInt("window-days")
	}
	if viper.IsSet("min-score") {
		cfg.MinScore = viper.GetFloat64("min-score")
	}
	return cfg
}

// CreateThresholds creates the booking decision thresholds with CLI
// overrides applied.
func CreateThresholds() *booking.Thresholds {
	t := booking.DefaultThresholds()
	if viper.IsSet("auto-book-threshold") {
		t.AutoBook = viper.GetFloat64("auto-book-threshold")
	}
	if viper.IsSet("review-threshold") {
		t.Review = viper.GetFloat64("review-threshold")
	}
	return &t
}

// CreateQueueConfig creates the worker and queue configuration with CLI
// overrides applied.
func CreateQueueConfig() *queue.Config {
	cfg := queue.DefaultConfig()
	if viper.IsSet("workers") {
		cfg.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("max-retries") {
		cfg.MaxRetries = viper.GetInt("max-retries")
	}
	if viper.IsSet("poll-interval") {
		cfg.PollInterval = viper.GetDuration("poll-interval")
	}
	if viper.IsSet("visibility-timeout") {
		cfg.VisibilityTimeout = viper.GetDuration("visibility-timeout")
	}
	if viper.IsSet("extract-timeout") {
		cfg.ExtractTimeout = viper.GetDuration("extract-timeout")
	}
	return cfg
}

// CreateExtractor returns the extraction capability for this deployment.
// The static extractor serves pre-annotated documents; deployments with
// an OCR or LLM backend swap their implementation in here.
func CreateExtractor() enrich.Extractor {
	return enrich.NewStaticExtractor()
}

// CreateSuggester returns the account suggestion capability, or nil for
// keyword-rule fallback.
func CreateSuggester() enrich.Suggester {
	return nil
}

// SweepInterval is how often the worker command prunes expired cache
// entries while running.
func SweepInterval() time.Duration {
	if viper.IsSet("sweep-interval") {
		return viper.GetDuration("sweep-interval")
	}
	return time.Hour
}
