package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/convoctx/convoctx/cache"
	"github.com/convoctx/convoctx/hooks"
	"github.com/convoctx/convoctx/semantic"
	"github.com/convoctx/convoctx/storage"
	"github.com/convoctx/convoctx/tokens"
	"github.com/convoctx/convoctx/types"
)

// Default configuration values.
const (
	DefaultShortTermSize     = 10
	DefaultCacheTTL          = time.Hour
	DefaultSemanticLimit     = 5
	DefaultMinRelevanceScore = 0.5
)

// Config holds memory tier configuration.
type Config struct {
	// ShortTermSize is the number of turns kept in the cache window.
	// Default: 10
	ShortTermSize int

	// CacheTTL is the short-term window expiry, refreshed on every
	// write. Default: 1h
	CacheTTL time.Duration

	// SemanticLimit is the maximum number of semantic search hits.
	// Default: 5
	SemanticLimit int

	// MinRelevanceScore is the semantic search score floor (0.0-1.0).
	// Default: 0.5
	MinRelevanceScore float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ShortTermSize:     DefaultShortTermSize,
		CacheTTL:          DefaultCacheTTL,
		SemanticLimit:     DefaultSemanticLimit,
		MinRelevanceScore: DefaultMinRelevanceScore,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.ShortTermSize == 0 {
		c.ShortTermSize = DefaultShortTermSize
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.SemanticLimit == 0 {
		c.SemanticLimit = DefaultSemanticLimit
	}
	if c.MinRelevanceScore == 0 {
		c.MinRelevanceScore = DefaultMinRelevanceScore
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ShortTermSize < 1 {
		return fmt.Errorf("short_term_size must be positive, got %d", c.ShortTermSize)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative, got %s", c.CacheTTL)
	}
	if c.SemanticLimit < 1 {
		return fmt.Errorf("semantic_limit must be positive, got %d", c.SemanticLimit)
	}
	if c.MinRelevanceScore < 0 || c.MinRelevanceScore > 1 {
		return fmt.Errorf("min_relevance_score must be between 0 and 1, got %f", c.MinRelevanceScore)
	}
	return nil
}

// Manager reads and writes the memory tiers. The cache and the semantic
// pair (embedder, index) are optional: a nil cache degrades every
// short-term read to the store, a nil semantic pair disables search.
type Manager struct {
	cache    cache.Store
	store    storage.Store
	embedder semantic.Embedder
	index    semantic.Index
	counter  *tokens.Counter
	hooks    *hooks.Registry
	logger   *log.Logger
	config   *Config
}

// NewManager creates a Manager. config, hooks, and logger may be nil
// for defaults.
func NewManager(cacheStore cache.Store, store storage.Store, embedder semantic.Embedder, index semantic.Index, counter *tokens.Counter, registry *hooks.Registry, config *Config, logger *log.Logger) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory configuration: %w", err)
	}
	if registry == nil {
		registry = hooks.NewRegistry()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cache:    cacheStore,
		store:    store,
		embedder: embedder,
		index:    index,
		counter:  counter,
		hooks:    registry,
		logger:   logger,
		config:   config,
	}, nil
}

// AddToShortTerm writes a turn into the cache window, trims it to the
// configured size, and refreshes the TTL. Cache failure degrades the
// tier instead of failing the caller: the turn is already durable in
// the store.
func (m *Manager) AddToShortTerm(ctx context.Context, conversationID uuid.UUID, entry cache.Entry) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Append(ctx, conversationID, entry); err != nil {
		m.degrade(ctx, conversationID, fmt.Errorf("failed to append to short-term memory: %w", err))
		return
	}
	if err := m.cache.TrimToLastN(ctx, conversationID, m.config.ShortTermSize); err != nil {
		m.degrade(ctx, conversationID, fmt.Errorf("failed to trim short-term memory: %w", err))
		return
	}
	if err := m.cache.SetExpiry(ctx, conversationID, m.config.CacheTTL); err != nil {
		m.degrade(ctx, conversationID, fmt.Errorf("failed to set short-term expiry: %w", err))
	}
}

// ShortTerm returns the recent-turn window. A populated cache answers
// directly; otherwise the store is read and the cache repopulated.
func (m *Manager) ShortTerm(ctx context.Context, conversationID uuid.UUID, limit int) (ShortTermMemory, error) {
	if limit <= 0 {
		limit = m.config.ShortTermSize
	}

	if m.cache != nil {
		entries, err := m.cache.ReadRange(ctx, conversationID, limit)
		if err != nil {
			m.degrade(ctx, conversationID, fmt.Errorf("failed to read short-term memory: %w", err))
		} else if len(entries) > 0 {
			return ShortTermMemory{Messages: entries, TurnCount: len(entries)}, nil
		}
	}

	turns, err := m.store.GetRecentTurns(ctx, conversationID, limit)
	if err != nil {
		return ShortTermMemory{}, fmt.Errorf("failed to load recent turns: %w", err)
	}

	entries := make([]cache.Entry, 0, len(turns))
	for _, t := range turns {
		entries = append(entries, cache.Entry{Role: t.Role, Content: t.Content, TurnNumber: t.TurnNumber})
	}

	if m.cache != nil && len(entries) > 0 {
		m.repopulate(ctx, conversationID, entries)
	}

	return ShortTermMemory{Messages: entries, TurnCount: len(entries)}, nil
}

// repopulate rebuilds the cache window from store-loaded entries.
// Best-effort: a failure leaves the window absent, and the next read
// falls back to the store again.
func (m *Manager) repopulate(ctx context.Context, conversationID uuid.UUID, entries []cache.Entry) {
	if err := m.cache.Delete(ctx, conversationID); err != nil {
		m.degrade(ctx, conversationID, fmt.Errorf("failed to reset short-term window: %w", err))
		return
	}
	for _, e := range entries {
		if err := m.cache.Append(ctx, conversationID, e); err != nil {
			m.degrade(ctx, conversationID, fmt.Errorf("failed to repopulate short-term window: %w", err))
			return
		}
	}
	if err := m.cache.TrimToLastN(ctx, conversationID, m.config.ShortTermSize); err != nil {
		m.degrade(ctx, conversationID, fmt.Errorf("failed to trim short-term window: %w", err))
		return
	}
	if err := m.cache.SetExpiry(ctx, conversationID, m.config.CacheTTL); err != nil {
		m.degrade(ctx, conversationID, fmt.Errorf("failed to set short-term expiry: %w", err))
	}
}

// LongTerm returns stored summaries, or nil when there are none.
func (m *Manager) LongTerm(ctx context.Context, conversationID uuid.UUID) (*LongTermMemory, error) {
	summaries, err := m.store.GetSummaries(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	views := make([]SummaryView, 0, len(summaries))
	total := 0
	for _, s := range summaries {
		views = append(views, SummaryView{
			Summary:        s.Summary,
			TurnRangeStart: s.TurnRangeStart,
			TurnRangeEnd:   s.TurnRangeEnd,
			KeyFacts:       s.KeyFacts,
		})
		total += s.CompressedTokens
	}
	return &LongTermMemory{Summaries: views, TotalCompressedTokens: total}, nil
}

// Semantic searches past conversations of the same user. Returns nil
// when the semantic tier is not configured or queryText is empty.
// Search failure degrades to no hits: semantic memory enriches context,
// it does not gate the turn.
func (m *Manager) Semantic(ctx context.Context, userID, queryText string) []semantic.SearchResult {
	if m.embedder == nil || m.index == nil || queryText == "" {
		return nil
	}

	vector, err := m.embedder.Embed(ctx, queryText)
	if err != nil {
		m.logger.Warn("semantic query embedding failed", "user_id", userID, "error", err)
		return nil
	}

	results, err := m.index.Search(ctx, semantic.Query{
		Vector:   vector,
		UserID:   userID,
		Limit:    m.config.SemanticLimit,
		MinScore: m.config.MinRelevanceScore,
	})
	if err != nil {
		m.logger.Warn("semantic search failed", "user_id", userID, "error", err)
		return nil
	}
	return results
}

// State assembles the complete memory view. queryText, when non-empty,
// drives the semantic tier.
func (m *Manager) State(ctx context.Context, conversationID uuid.UUID, userID, queryText string) (*State, error) {
	shortTerm, err := m.ShortTerm(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	longTerm, err := m.LongTerm(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	semanticResults := m.Semantic(ctx, userID, queryText)

	contextTokens := m.counter.CountMessages(entriesToMessages(shortTerm.Messages))
	if longTerm != nil {
		for _, s := range longTerm.Summaries {
			contextTokens += m.counter.Count(s.Summary)
		}
	}

	return &State{
		ConversationID:     conversationID,
		ShortTerm:          shortTerm,
		LongTerm:           longTerm,
		Semantic:           semanticResults,
		TotalContextTokens: contextTokens,
	}, nil
}

func (m *Manager) degrade(ctx context.Context, conversationID uuid.UUID, err error) {
	m.logger.Warn("short-term cache degraded", "conversation_id", conversationID, "error", err)
	m.hooks.TriggerCacheDegraded(ctx, conversationID, err)
}

func entriesToMessages(entries []cache.Entry) []types.Message {
	messages := make([]types.Message, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, e.Message())
	}
	return messages
}
