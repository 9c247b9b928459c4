// Package memory composes the three memory tiers into one view: the
// short-term cache window, long-term stored summaries, and semantic
// search over past conversations. The durable store is the source of
// truth; the cache tier degrades to it rather than failing a read.
package memory

import (
	"github.com/google/uuid"

	"github.com/convoctx/convoctx/cache"
	"github.com/convoctx/convoctx/semantic"
)

// ShortTermMemory is the recent-turn window.
type ShortTermMemory struct {
	Messages  []cache.Entry `json:"messages"`
	TurnCount int           `json:"turn_count"`
}

// SummaryView is one long-term summary as exposed to callers.
type SummaryView struct {
	Summary        string         `json:"summary"`
	TurnRangeStart int            `json:"turn_range_start"`
	TurnRangeEnd   int            `json:"turn_range_end"`
	KeyFacts       map[string]any `json:"key_facts,omitempty"`
}

// LongTermMemory is the stored summary tier. It is nil when the
// conversation has no summaries yet.
type LongTermMemory struct {
	Summaries             []SummaryView `json:"summaries"`
	TotalCompressedTokens int           `json:"total_compressed_tokens"`
}

// State is the complete memory view for one conversation at one moment.
type State struct {
	ConversationID     uuid.UUID               `json:"conversation_id"`
	ShortTerm          ShortTermMemory         `json:"short_term"`
	LongTerm           *LongTermMemory         `json:"long_term,omitempty"`
	Semantic           []semantic.SearchResult `json:"semantic"`
	TotalContextTokens int                     `json:"total_context_tokens"`
}
