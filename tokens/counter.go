// Package tokens provides deterministic token counting for prompt
// budgeting. Counts are approximations with a consistent, known bias:
// the same input and encoding always produce the same count, so budget
// checks are reproducible. No I/O is performed.
package tokens

import (
	"github.com/convoctx/convoctx/types"
)

// Structural overhead constants. Chat-style encodings spend tokens on
// message framing beyond the visible text; these mirror the overhead of
// common chat formats and must stay fixed within one configuration.
const (
	// MessageOverheadTokens is added for every message in a sequence.
	MessageOverheadTokens = 4

	// SequenceOverheadTokens is added once per message sequence.
	SequenceOverheadTokens = 2
)

// Encoding describes a character-based token approximation for one model
// family. CharsPerToken is the average character cost of one token.
type Encoding struct {
	Name          string
	CharsPerToken int
}

// DefaultEncoding is the fallback used when a model has no registered
// encoding. ~4 characters per token holds for English prose across the
// major tokenizers.
var DefaultEncoding = Encoding{Name: "approx-4", CharsPerToken: 4}

// modelEncodings maps model identifiers to their encodings. Unknown
// models fall back to DefaultEncoding rather than failing.
var modelEncodings = map[string]Encoding{
	"claude-sonnet-4-5-20250929": {Name: "approx-4", CharsPerToken: 4},
	"claude-3-5-haiku-20241022":  {Name: "approx-4", CharsPerToken: 4},
	"gpt-4o-mini":                {Name: "approx-4", CharsPerToken: 4},
	"text-embedding-3-small":     {Name: "approx-4", CharsPerToken: 4},
}

// EncodingForModel returns the registered encoding for the model, or
// DefaultEncoding if none is registered.
func EncodingForModel(model string) Encoding {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	return DefaultEncoding
}

// Counter counts tokens under a fixed encoding. Counters are stateless
// and safe for concurrent use.
type Counter struct {
	encoding Encoding
}

// NewCounter creates a Counter for the given model, falling back to the
// default encoding when the model is unknown.
func NewCounter(model string) *Counter {
	return &Counter{encoding: EncodingForModel(model)}
}

// NewCounterWithEncoding creates a Counter with an explicit encoding.
func NewCounterWithEncoding(enc Encoding) *Counter {
	if enc.CharsPerToken <= 0 {
		enc = DefaultEncoding
	}
	return &Counter{encoding: enc}
}

// Encoding returns the encoding this counter uses.
func (c *Counter) Encoding() Encoding {
	return c.encoding
}

// Count returns the approximate token count for the text. Empty text
// counts as zero; any non-empty text counts as at least one token.
func (c *Counter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := c.encoding.CharsPerToken
	count := (len(text) + n - 1) / n
	if count < 1 {
		count = 1
	}
	return count
}

// CountMessages returns the approximate token count for a message
// sequence, including per-message structural overhead and the final
// sequence overhead. An empty sequence costs exactly
// SequenceOverheadTokens, not zero.
func (c *Counter) CountMessages(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += MessageOverheadTokens
		total += c.Count(string(msg.Role))
		total += c.Count(msg.Content)
	}
	return total + SequenceOverheadTokens
}
