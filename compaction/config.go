package compaction

import (
	"fmt"
)

// Default configuration values.
const (
	DefaultThreshold           = 0.8  // compress at 80% of the context budget
	DefaultSummaryInterval     = 10   // summarize every 10 assistant turns
	DefaultSummaryMaxTokens    = 1000 // max tokens for a periodic summary
	DefaultCorrectionMaxTokens = 300  // max tokens for the correction rewrite
	MinCompressionTokens       = 100  // floor for the compression summary budget
)

// Config holds compaction configuration.
type Config struct {
	// Threshold is the fraction (0.0-1.0) of the context budget at which
	// compression triggers. E.g., 0.8 means compress once the assembled
	// context exceeds 80% of the budget.
	// Default: 0.8
	Threshold float64

	// SummaryInterval is the number of assistant turns between periodic
	// summaries. Every SummaryInterval-th assistant turn triggers a
	// background summary of the turns since the previous one.
	// Default: 10
	SummaryInterval int

	// SummaryMaxTokens is the maximum tokens for a periodic summary
	// response.
	// Default: 1000
	SummaryMaxTokens int

	// CorrectionMaxTokens is the maximum tokens for the summary
	// correction rewrite. Corrections produce a shorter, targeted
	// revision of an existing summary.
	// Default: 300
	CorrectionMaxTokens int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Threshold:           DefaultThreshold,
		SummaryInterval:     DefaultSummaryInterval,
		SummaryMaxTokens:    DefaultSummaryMaxTokens,
		CorrectionMaxTokens: DefaultCorrectionMaxTokens,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1.0 {
		return fmt.Errorf("%w: threshold must be between 0 and 1, got %f", ErrInvalidConfig, c.Threshold)
	}

	if c.SummaryInterval <= 0 {
		return fmt.Errorf("%w: summary_interval must be positive, got %d", ErrInvalidConfig, c.SummaryInterval)
	}

	if c.SummaryMaxTokens <= 0 {
		return fmt.Errorf("%w: summary_max_tokens must be positive, got %d", ErrInvalidConfig, c.SummaryMaxTokens)
	}

	if c.CorrectionMaxTokens <= 0 {
		return fmt.Errorf("%w: correction_max_tokens must be positive, got %d", ErrInvalidConfig, c.CorrectionMaxTokens)
	}

	return nil
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.SummaryInterval == 0 {
		c.SummaryInterval = DefaultSummaryInterval
	}
	if c.SummaryMaxTokens == 0 {
		c.SummaryMaxTokens = DefaultSummaryMaxTokens
	}
	if c.CorrectionMaxTokens == 0 {
		c.CorrectionMaxTokens = DefaultCorrectionMaxTokens
	}
}
