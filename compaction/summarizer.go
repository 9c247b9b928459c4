package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/convoctx/convoctx/constraint"
	"github.com/convoctx/convoctx/llm"
	"github.com/convoctx/convoctx/semantic"
	"github.com/convoctx/convoctx/storage"
	"github.com/convoctx/convoctx/tokens"
)

// Result describes one completed summarization pass.
type Result struct {
	ConversationID   uuid.UUID
	SummaryID        uuid.UUID
	TurnRangeStart   int
	TurnRangeEnd     int
	OriginalTokens   int
	CompressedTokens int
	TokensSaved      int

	// Indexed reports whether the summary reached the vector index.
	// IndexError carries the failure when it did not; the summary is
	// still stored durably either way.
	Indexed    bool
	IndexError error

	Duration time.Duration
}

// Summarizer condenses turn ranges into stored summaries and feeds them
// to the semantic index. The embedder and index are optional: without
// them summaries are stored but not indexed.
type Summarizer struct {
	store     storage.Store
	generator llm.Generator
	counter   *tokens.Counter
	embedder  semantic.Embedder
	index     semantic.Index
	config    *Config
	logger    *log.Logger
}

// NewSummarizer creates a Summarizer. config may be nil for defaults;
// logger may be nil for the default logger.
func NewSummarizer(store storage.Store, generator llm.Generator, counter *tokens.Counter, embedder semantic.Embedder, index semantic.Index, config *Config, logger *log.Logger) (*Summarizer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Summarizer{
		store:     store,
		generator: generator,
		counter:   counter,
		embedder:  embedder,
		index:     index,
		config:    config,
		logger:    logger,
	}, nil
}

// Due reports whether an assistant turn number lands on a summary
// boundary.
func (s *Summarizer) Due(assistantTurn int) bool {
	return assistantTurn > 0 && assistantTurn%s.config.SummaryInterval == 0
}

// CompactTurnRange summarizes the turns leading up to currentTurn,
// corrects the summary against active constraints, stores it, and
// indexes it for semantic retrieval. Indexing failure is reported on
// the Result, not as an error: a stored summary is useful even when
// the index write fails.
func (s *Summarizer) CompactTurnRange(ctx context.Context, conversationID uuid.UUID, userID string, currentTurn int) (*Result, error) {
	started := time.Now()

	startTurn := currentTurn - s.config.SummaryInterval + 1
	if startTurn < 1 {
		startTurn = 1
	}

	turns, err := s.store.GetTurnRange(ctx, conversationID, startTurn, currentTurn)
	if err != nil {
		return nil, WrapErrorWithConversation("CompactTurnRange", conversationID,
			fmt.Errorf("%w: %v", ErrStorageError, err))
	}
	if len(turns) == 0 {
		return nil, NewCompactionError("CompactTurnRange", ErrNoTurnsToSummarize).
			WithConversation(conversationID).
			WithContext("start_turn", startTurn).
			WithContext("end_turn", currentTurn)
	}

	originalTokens := 0
	for _, t := range turns {
		originalTokens += s.counter.Count(t.Content)
	}

	summary, err := s.generator.Summarize(ctx, FormatTurnsAsText(turns), s.config.SummaryMaxTokens)
	if err != nil {
		return nil, WrapErrorWithConversation("CompactTurnRange", conversationID,
			fmt.Errorf("%w: %v", ErrSummarizationFailed, err))
	}

	summary = s.applyCorrections(ctx, conversationID, summary)

	stored, err := s.store.CreateSummary(ctx, &storage.Summary{
		ConversationID:   conversationID,
		Summary:          summary,
		CompressedTokens: s.counter.Count(summary),
		TurnRangeStart:   startTurn,
		TurnRangeEnd:     currentTurn,
	})
	if err != nil {
		return nil, WrapErrorWithConversation("CompactTurnRange", conversationID,
			fmt.Errorf("%w: %v", ErrStorageError, err))
	}

	result := &Result{
		ConversationID:   conversationID,
		SummaryID:        stored.ID,
		TurnRangeStart:   startTurn,
		TurnRangeEnd:     currentTurn,
		OriginalTokens:   originalTokens,
		CompressedTokens: stored.CompressedTokens,
		TokensSaved:      originalTokens - stored.CompressedTokens,
	}

	if s.embedder != nil && s.index != nil {
		if err := s.indexSummary(ctx, stored, userID); err != nil {
			s.logger.Warn("summary indexing failed",
				"conversation_id", conversationID,
				"summary_id", stored.ID,
				"error", err)
			result.IndexError = err
		} else {
			result.Indexed = true
		}
	}

	result.Duration = time.Since(started)
	return result, nil
}

// applyCorrections rewrites the summary so corrected values replace the
// stale ones. Any failure along the way falls back to the uncorrected
// summary.
func (s *Summarizer) applyCorrections(ctx context.Context, conversationID uuid.UUID, summary string) string {
	active, err := s.store.ListActiveConstraints(ctx, conversationID)
	if err != nil {
		s.logger.Warn("listing constraints for summary correction failed",
			"conversation_id", conversationID, "error", err)
		return summary
	}

	var notes []string
	for _, c := range active {
		if c.Type != constraint.TypeCorrection {
			continue
		}
		v, ok := c.Value.(constraint.CorrectionValue)
		if !ok || v.OldValue == "" || v.NewValue == "" {
			continue
		}
		notes = append(notes, fmt.Sprintf("Use %s instead of %s", v.NewValue, v.OldValue))
	}
	if len(notes) == 0 {
		return summary
	}

	corrected, err := s.generator.Summarize(ctx, BuildCorrectionPrompt(summary, notes), s.config.CorrectionMaxTokens)
	if err != nil {
		s.logger.Warn("summary correction failed, keeping uncorrected summary",
			"conversation_id", conversationID, "error", err)
		return summary
	}
	return corrected
}

func (s *Summarizer) indexSummary(ctx context.Context, stored *storage.Summary, userID string) error {
	vector, err := s.embedder.Embed(ctx, stored.Summary)
	if err != nil {
		return fmt.Errorf("failed to embed summary: %w", err)
	}
	return s.index.Upsert(ctx, semantic.Record{
		SummaryID:      stored.ID,
		ConversationID: stored.ConversationID,
		UserID:         userID,
		Text:           stored.Summary,
		TurnRangeStart: stored.TurnRangeStart,
		TurnRangeEnd:   stored.TurnRangeEnd,
		Vector:         vector,
	})
}
