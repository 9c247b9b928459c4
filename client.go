package convoctx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/convoctx/convoctx/cache"
	"github.com/convoctx/convoctx/compaction"
	"github.com/convoctx/convoctx/constraint"
	"github.com/convoctx/convoctx/hooks"
	"github.com/convoctx/convoctx/llm"
	"github.com/convoctx/convoctx/memory"
	"github.com/convoctx/convoctx/semantic"
	"github.com/convoctx/convoctx/storage"
	"github.com/convoctx/convoctx/tokens"
	"github.com/convoctx/convoctx/types"
)

// Version is the current ConvoCtx version
const Version = "1.0.0"

// Context injection prefixes. Long-term summaries reuse the compression
// prefix so the model sees one consistent framing for condensed history.
const (
	longTermPrefix = compaction.CompressionSummaryPrefix
	semanticPrefix = "Relevant past conversation: "
)

// Dependencies holds the external services a Client is built from.
// Store and Generator are required. Cache, Embedder, and Index are
// optional: without them the corresponding memory tier degrades or is
// disabled.
type Dependencies struct {
	// Store is the durable tier (required)
	Store storage.Store

	// Cache is the short-term tier (optional)
	Cache cache.Store

	// Generator produces responses and summaries (required)
	Generator llm.Generator

	// Embedder and Index form the semantic tier (optional, both or neither)
	Embedder semantic.Embedder
	Index    semantic.Index

	// Hooks receives lifecycle notifications (optional)
	Hooks *hooks.Registry

	// Logger for structured logging (optional)
	Logger *log.Logger
}

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	Response       string    `json:"response"`
	TurnNumber     int       `json:"turn_number"`
	TokensUsed     int       `json:"tokens_used"`
	ContextTokens  int       `json:"context_tokens"`
	ResponseTokens int       `json:"response_tokens"`
	Compressed     bool      `json:"compressed"`
}

// Client orchestrates conversations: it persists turns, assembles
// budgeted context from the memory tiers, extracts and enforces
// constraints, and schedules background summarization.
type Client struct {
	store      storage.Store
	generator  llm.Generator
	counter    *tokens.Counter
	extractor  *constraint.Extractor
	memory     *memory.Manager
	compressor *compaction.Compressor
	summarizer *compaction.Summarizer
	hooks      *hooks.Registry
	logger     *log.Logger
	config     *Config

	summaryWG sync.WaitGroup
}

// NewClient creates a Client. config may be nil for defaults.
func NewClient(deps Dependencies, config *Config) (*Client, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("%w: generator is required", ErrInvalidConfig)
	}
	if (deps.Embedder == nil) != (deps.Index == nil) {
		return nil, fmt.Errorf("%w: embedder and index must be provided together", ErrInvalidConfig)
	}

	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry := deps.Hooks
	if registry == nil {
		registry = hooks.NewRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	counter := tokens.NewCounter(config.Model)

	mgr, err := memory.NewManager(deps.Cache, deps.Store, deps.Embedder, deps.Index, counter, registry, config.Memory, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	summarizer, err := compaction.NewSummarizer(deps.Store, deps.Generator, counter, deps.Embedder, deps.Index, config.Compaction, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Client{
		store:      deps.Store,
		generator:  deps.Generator,
		counter:    counter,
		extractor:  constraint.NewExtractor(),
		memory:     mgr,
		compressor: compaction.NewCompressor(deps.Generator, counter, config.Compaction.Threshold),
		summarizer: summarizer,
		hooks:      registry,
		logger:     logger,
		config:     config,
	}, nil
}

// Close waits for in-flight background summarization to finish.
func (c *Client) Close() {
	c.summaryWG.Wait()
}

// StartConversation creates a conversation and processes its first
// message. An empty sessionID derives one from the user ID.
func (c *Client) StartConversation(ctx context.Context, userID, sessionID, content string) (*storage.Conversation, *TurnResult, error) {
	if sessionID == "" {
		sessionID = "session_" + userID
	}
	conv, err := c.store.CreateConversation(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	result, err := c.processTurn(ctx, conv, content)
	if err != nil {
		return conv, nil, err
	}
	return conv, result, nil
}

// SendMessage processes a message in an existing conversation. The
// caller's userID must match the conversation owner.
func (c *Client) SendMessage(ctx context.Context, conversationID uuid.UUID, userID, content string) (*TurnResult, error) {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if conv.UserID != userID {
		return nil, ErrUserMismatch
	}
	return c.processTurn(ctx, conv, content)
}

// ResumeSession returns the most recent conversation for the user's
// session, or ErrConversationNotFound.
func (c *Client) ResumeSession(ctx context.Context, userID, sessionID string) (*storage.Conversation, error) {
	conv, err := c.store.GetConversationBySession(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return conv, nil
}

// GetMemory returns the conversation's memory state without running a
// semantic query.
func (c *Client) GetMemory(ctx context.Context, conversationID uuid.UUID) (*memory.State, error) {
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return c.memory.State(ctx, conv.ID, conv.UserID, "")
}

// processTurn runs the full turn pipeline: persist the user turn,
// assemble budgeted context, generate, persist the assistant turn, and
// schedule summarization when due.
func (c *Client) processTurn(ctx context.Context, conv *storage.Conversation, content string) (*TurnResult, error) {
	userTurn := conv.TotalTurns + 1
	if err := c.hooks.TriggerBeforeTurn(ctx, conv.ID, userTurn, content); err != nil {
		return nil, fmt.Errorf("before-turn hook rejected turn: %w", err)
	}

	userStored, err := c.store.AddTurn(ctx, conv.ID, types.RoleUser, content, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.memory.AddToShortTerm(ctx, conv.ID, cache.Entry{
		Role: types.RoleUser, Content: content, TurnNumber: userStored.TurnNumber,
	})

	response, totalTokens, contextTokens, responseTokens, compressed, err := c.generate(ctx, conv.ID, conv.UserID, content, userStored.TurnNumber)
	if err != nil {
		return nil, err
	}

	assistantStored, err := c.store.AddTurn(ctx, conv.ID, types.RoleAssistant, response, totalTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.memory.AddToShortTerm(ctx, conv.ID, cache.Entry{
		Role: types.RoleAssistant, Content: response, TurnNumber: assistantStored.TurnNumber,
	})

	if err := c.hooks.TriggerAfterTurn(ctx, conv.ID, assistantStored.TurnNumber, response, totalTokens); err != nil {
		c.logger.Warn("after-turn hook failed", "conversation_id", conv.ID, "error", err)
	}

	if c.summarizer.Due(assistantStored.TurnNumber) {
		c.scheduleSummary(conv.ID, conv.UserID, assistantStored.TurnNumber)
	}

	return &TurnResult{
		ConversationID: conv.ID,
		MessageID:      assistantStored.ID,
		Response:       response,
		TurnNumber:     assistantStored.TurnNumber,
		TokensUsed:     totalTokens,
		ContextTokens:  contextTokens,
		ResponseTokens: responseTokens,
		Compressed:     compressed,
	}, nil
}

// generate assembles the context for one turn and calls the model.
func (c *Client) generate(ctx context.Context, conversationID uuid.UUID, userID, userMessage string, turnNumber int) (response string, totalTokens, contextTokens, responseTokens int, compressed bool, err error) {
	state, err := c.memory.State(ctx, conversationID, userID, userMessage)
	if err != nil {
		return "", 0, 0, 0, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	active, err := c.activeConstraints(ctx, conversationID)
	if err != nil {
		return "", 0, 0, 0, false, err
	}
	active = c.extractAndStore(ctx, conversationID, state, userMessage, turnNumber, active)

	systemPrompt := c.config.BaseSystemPrompt
	if constraint.ShouldInject(turnNumber, active) {
		systemPrompt += constraint.BuildPrompt(active)
	}
	systemTokens := c.counter.Count(systemPrompt)

	messages := c.assembleContext(state, userMessage)

	budget := c.config.Budget.Available(systemTokens, c.config.Budget.ResponseReserve)
	contextTokens = c.counter.CountMessages(messages)

	if c.compressor.ShouldCompress(contextTokens, budget) {
		result, cerr := c.compressor.Compress(ctx, messages, budget)
		if cerr != nil {
			return "", 0, 0, 0, false, fmt.Errorf("%w: %w", ErrBudgetExceeded, cerr)
		}
		messages = result.Messages
		contextTokens = result.CompressedTokens
		compressed = result.Compressed
		if contextTokens > budget {
			c.logger.Warn("context still over budget after compression",
				"conversation_id", conversationID, "context_tokens", contextTokens, "budget", budget)
		}
		if herr := c.hooks.TriggerCompression(ctx, conversationID, result); herr != nil {
			c.logger.Warn("compression hook failed", "conversation_id", conversationID, "error", herr)
		}
	}

	response, err = c.generator.Complete(ctx, messages, systemPrompt, c.config.Budget.ResponseReserve)
	if err != nil {
		return "", 0, 0, 0, false, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	responseTokens = c.counter.Count(response)
	totalTokens = systemTokens + contextTokens + responseTokens
	return response, totalTokens, contextTokens, responseTokens, compressed, nil
}

func (c *Client) activeConstraints(ctx context.Context, conversationID uuid.UUID) ([]constraint.Constraint, error) {
	stored, err := c.store.ListActiveConstraints(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	active := make([]constraint.Constraint, 0, len(stored))
	for _, s := range stored {
		active = append(active, *s)
	}
	return active, nil
}

// extractAndStore scans the trailing window plus the incoming message
// for new constraints and persists them. A constraint that cannot be
// stored is dropped with a hook notification; the turn proceeds.
func (c *Client) extractAndStore(ctx context.Context, conversationID uuid.UUID, state *memory.State, userMessage string, turnNumber int, active []constraint.Constraint) []constraint.Constraint {
	recent := state.ShortTerm.Messages
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	recentMessages := make([]types.Message, 0, len(recent))
	for _, e := range recent {
		recentMessages = append(recentMessages, e.Message())
	}

	for _, cand := range c.extractor.Extract(conversationID, recentMessages, userMessage, turnNumber) {
		stored, err := c.store.StoreConstraint(ctx, cand)
		if err != nil {
			c.hooks.TriggerConstraintDropped(ctx, conversationID, cand, err)
			continue
		}
		active = append(active, *stored)
	}
	return active
}

// assembleContext orders the tiers into the prompt: long-term
// summaries, then semantic hits, then the short-term window, then the
// incoming message if the window does not already end with it.
func (c *Client) assembleContext(state *memory.State, userMessage string) []types.Message {
	var messages []types.Message

	if state.LongTerm != nil {
		for _, s := range state.LongTerm.Summaries {
			messages = append(messages, types.System(longTermPrefix+s.Summary, types.SourceLongTerm))
		}
	}
	for _, r := range state.Semantic {
		messages = append(messages, types.System(semanticPrefix+r.Summary, types.SourceSemantic))
	}
	for _, e := range state.ShortTerm.Messages {
		messages = append(messages, e.Message())
	}

	n := len(state.ShortTerm.Messages)
	if n == 0 ||
		state.ShortTerm.Messages[n-1].Content != userMessage ||
		state.ShortTerm.Messages[n-1].Role != types.RoleUser {
		messages = append(messages, types.User(userMessage))
	}
	return messages
}

// scheduleSummary runs a summarization pass in the background, bounded
// by the configured timeout. The pass is detached from the request
// context: the turn has already completed.
func (c *Client) scheduleSummary(conversationID uuid.UUID, userID string, currentTurn int) {
	c.summaryWG.Add(1)
	go func() {
		defer c.summaryWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SummaryTimeout)
		defer cancel()

		result, err := c.summarizer.CompactTurnRange(ctx, conversationID, userID, currentTurn)
		if err != nil {
			c.logger.Error("background summarization failed",
				"conversation_id", conversationID,
				"current_turn", currentTurn,
				"error", err)
			return
		}
		if result.IndexError != nil {
			c.hooks.TriggerIndexingFailed(ctx, conversationID, result.SummaryID, result.IndexError)
		}
		if herr := c.hooks.TriggerSummary(ctx, result); herr != nil {
			c.logger.Warn("summary hook failed", "conversation_id", conversationID, "error", herr)
		}
	}()
}
