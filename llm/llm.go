// Package llm provides text generation for responses and summaries.
package llm

import (
	"context"
	"errors"

	"github.com/convoctx/convoctx/types"
)

// ErrGenerationFailed indicates the model call failed or returned no
// usable text.
var ErrGenerationFailed = errors.New("llm: generation failed")

// Generator produces model completions.
type Generator interface {
	// Complete generates an assistant reply for the assembled context.
	// System-role messages inside the slice are carried as system
	// content alongside systemPrompt.
	Complete(ctx context.Context, messages []types.Message, systemPrompt string, maxTokens int) (string, error)

	// Summarize condenses conversation text into a summary of at most
	// maxTokens tokens.
	Summarize(ctx context.Context, text string, maxTokens int) (string, error)
}
