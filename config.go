package convoctx

import (
	"fmt"
	"time"

	"github.com/convoctx/convoctx/compaction"
	"github.com/convoctx/convoctx/memory"
	"github.com/convoctx/convoctx/tokens"
)

// DefaultModel is the model assumed when none is configured. It only
// selects the token encoding; the Generator decides what actually runs.
const DefaultModel = "claude-sonnet-4-5-20250929"

// DefaultSummaryTimeout bounds a background summarization pass.
const DefaultSummaryTimeout = 30 * time.Second

// DefaultBaseSystemPrompt anchors every turn's system prompt. Constraint
// blocks are appended to it when due.
const DefaultBaseSystemPrompt = `You are a helpful assistant. Maintain full context from the current conversation:
- Remember and reference all information shared in previous messages
- Be consistent with facts, details, and topics already discussed
- Use the conversation history to provide coherent and contextually aware responses`

// Config holds client configuration. The zero value is usable: every
// field has a default.
type Config struct {
	// Model selects the token encoding used for budgeting.
	// Default: DefaultModel
	Model string

	// BaseSystemPrompt is the system prompt every turn starts from.
	// Default: DefaultBaseSystemPrompt
	BaseSystemPrompt string

	// Budget is the per-turn token allowance.
	Budget tokens.Budget

	// Memory configures the memory tiers.
	Memory *memory.Config

	// Compaction configures compression and periodic summarization.
	Compaction *compaction.Config

	// SummaryTimeout bounds each background summarization pass.
	// Default: 30s
	SummaryTimeout time.Duration
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BaseSystemPrompt == "" {
		c.BaseSystemPrompt = DefaultBaseSystemPrompt
	}
	c.Budget.ApplyDefaults()
	if c.Memory == nil {
		c.Memory = memory.DefaultConfig()
	}
	c.Memory.ApplyDefaults()
	if c.Compaction == nil {
		c.Compaction = compaction.DefaultConfig()
	}
	c.Compaction.ApplyDefaults()
	if c.SummaryTimeout == 0 {
		c.SummaryTimeout = DefaultSummaryTimeout
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Budget.MaxTokensPerTurn <= c.Budget.SystemReserve+c.Budget.ResponseReserve {
		return fmt.Errorf("%w: max tokens per turn (%d) must exceed the system and response reserves (%d + %d)",
			ErrInvalidConfig, c.Budget.MaxTokensPerTurn, c.Budget.SystemReserve, c.Budget.ResponseReserve)
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Compaction.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SummaryTimeout < 0 {
		return fmt.Errorf("%w: summary timeout must be non-negative, got %s", ErrInvalidConfig, c.SummaryTimeout)
	}
	return nil
}
