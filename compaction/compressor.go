package compaction

import (
	"context"
	"fmt"

	"github.com/convoctx/convoctx/llm"
	"github.com/convoctx/convoctx/tokens"
	"github.com/convoctx/convoctx/types"
)

// Compressor shrinks an assembled context to fit a token target by
// summarizing the older half of the raw conversation. Protected
// messages (injected memory content and earlier compression summaries)
// pass through untouched.
type Compressor struct {
	generator llm.Generator
	counter   *tokens.Counter
	threshold float64
}

// NewCompressor creates a Compressor. threshold is the fraction of the
// budget at which ShouldCompress fires; out-of-range values fall back
// to the default.
func NewCompressor(generator llm.Generator, counter *tokens.Counter, threshold float64) *Compressor {
	if threshold <= 0 || threshold > 1.0 {
		threshold = DefaultThreshold
	}
	return &Compressor{
		generator: generator,
		counter:   counter,
		threshold: threshold,
	}
}

// ShouldCompress reports whether a context of contextTokens exceeds the
// threshold fraction of budget.
func (c *Compressor) ShouldCompress(contextTokens, budget int) bool {
	return contextTokens > int(float64(budget)*c.threshold)
}

// CompressResult describes the outcome of one compression pass.
type CompressResult struct {
	// Messages is the context after compression. When Compressed is
	// false it is the input, unchanged.
	Messages []types.Message

	// Compressed reports whether any messages were replaced.
	Compressed bool

	// OriginalTokens and CompressedTokens are the context sizes before
	// and after, including structural overhead.
	OriginalTokens   int
	CompressedTokens int

	// MessagesRemoved is the number of conversation messages folded
	// into the summary.
	MessagesRemoved int
}

// Compress reduces messages toward targetTokens. Protected messages are
// carried through verbatim; of the remaining conversation, the most
// recent half is kept and the older half is replaced with a generated
// summary. Compression never increases the token count: if the
// summarized form would be larger than the input, the input is returned
// unchanged.
func (c *Compressor) Compress(ctx context.Context, messages []types.Message, targetTokens int) (*CompressResult, error) {
	originalTokens := c.counter.CountMessages(messages)
	unchanged := &CompressResult{
		Messages:         messages,
		OriginalTokens:   originalTokens,
		CompressedTokens: originalTokens,
	}

	protected := make([]types.Message, 0, len(messages))
	conversation := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Protected() {
			protected = append(protected, msg)
		} else {
			conversation = append(conversation, msg)
		}
	}
	if len(conversation) == 0 {
		return unchanged, nil
	}

	// Sequence overhead is paid once by the final assembly, not per
	// partition.
	protectedCost := c.counter.CountMessages(protected) - tokens.SequenceOverheadTokens
	available := targetTokens - protectedCost
	if available <= 0 {
		// Protected content alone exceeds the target. Nothing
		// summarizable can bring the context under it.
		return unchanged, nil
	}
	if originalTokens <= targetTokens {
		return unchanged, nil
	}

	recentCount := len(conversation) / 2
	if recentCount < 1 {
		recentCount = 1
	}
	older := conversation[:len(conversation)-recentCount]
	recent := conversation[len(conversation)-recentCount:]
	if len(older) == 0 {
		return unchanged, nil
	}

	summaryBudget := available / 2
	if summaryBudget < MinCompressionTokens {
		summaryBudget = MinCompressionTokens
	}

	summary, err := c.generator.Summarize(ctx, FormatMessagesAsText(older), summaryBudget)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}

	result := make([]types.Message, 0, len(protected)+1+len(recent))
	result = append(result, protected...)
	result = append(result, types.System(CompressionSummaryPrefix+summary, types.SourceCompression))
	result = append(result, recent...)

	compressedTokens := c.counter.CountMessages(result)
	if compressedTokens >= originalTokens {
		return unchanged, nil
	}

	return &CompressResult{
		Messages:         result,
		Compressed:       true,
		OriginalTokens:   originalTokens,
		CompressedTokens: compressedTokens,
		MessagesRemoved:  len(older),
	}, nil
}
