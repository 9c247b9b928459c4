package compaction

import (
	"strings"

	"github.com/convoctx/convoctx/storage"
	"github.com/convoctx/convoctx/types"
)

// CompressionSummaryPrefix prefixes every compression summary injected
// back into the context. The prefix is part of the message identity:
// downstream code relies on the tagged source, not on this text, but
// the prefix keeps the summary legible to the model.
const CompressionSummaryPrefix = "Previous conversation summary: "

// BuildCorrectionPrompt creates the prompt that rewrites a summary so
// corrected values replace the stale ones. notes are lines of the form
// "Use X instead of Y".
func BuildCorrectionPrompt(summary string, notes []string) string {
	return `The following summary may contain incorrect values. Please correct them:

Corrections to apply:
` + strings.Join(notes, "\n") + `

Summary to correct:
` + summary + `

Corrected summary (ensure all corrections are applied):`
}

// FormatMessagesAsText formats messages as role-labelled lines for
// summarization input.
func FormatMessagesAsText(messages []types.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, string(msg.Role)+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// FormatTurnsAsText formats stored turns as role-labelled lines for
// summarization input.
func FormatTurnsAsText(turns []*storage.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, string(t.Role)+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}
