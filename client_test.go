package convoctx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoctx/convoctx/cache"
	"github.com/convoctx/convoctx/compaction"
	"github.com/convoctx/convoctx/constraint"
	"github.com/convoctx/convoctx/hooks"
	"github.com/convoctx/convoctx/semantic"
	"github.com/convoctx/convoctx/storage"
	"github.com/convoctx/convoctx/tokens"
	"github.com/convoctx/convoctx/types"
)

// memStore is an in-memory storage.Store for orchestration tests.
type memStore struct {
	mu            sync.Mutex
	convs         map[uuid.UUID]*storage.Conversation
	turns         map[uuid.UUID][]*storage.Turn
	summaries     map[uuid.UUID][]*storage.Summary
	constraints   map[uuid.UUID][]*constraint.Constraint
	constraintErr error
}

func newMemStore() *memStore {
	return &memStore{
		convs:       make(map[uuid.UUID]*storage.Conversation),
		turns:       make(map[uuid.UUID][]*storage.Turn),
		summaries:   make(map[uuid.UUID][]*storage.Summary),
		constraints: make(map[uuid.UUID][]*constraint.Constraint),
	}
}

func (s *memStore) CreateConversation(ctx context.Context, userID, sessionID string) (*storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &storage.Conversation{ID: uuid.New(), UserID: userID, SessionID: sessionID}
	s.convs[conv.ID] = conv
	return conv, nil
}

func (s *memStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (*storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *conv
	return &clone, nil
}

func (s *memStore) GetConversationBySession(ctx context.Context, userID, sessionID string) (*storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.convs {
		if conv.UserID == userID && conv.SessionID == sessionID {
			clone := *conv
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) AddTurn(ctx context.Context, conversationID uuid.UUID, role types.Role, content string, tokensUsed int) (*storage.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	conv.TotalTurns++
	conv.TotalTokensUsed += tokensUsed
	turn := &storage.Turn{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TurnNumber:     conv.TotalTurns,
		TokensUsed:     tokensUsed,
	}
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	return turn, nil
}

func (s *memStore) GetTurns(ctx context.Context, conversationID uuid.UUID, limit int) ([]*storage.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[conversationID]
	if limit > 0 && len(turns) > limit {
		turns = turns[:limit]
	}
	return turns, nil
}

func (s *memStore) GetRecentTurns(ctx context.Context, conversationID uuid.UUID, limit int) ([]*storage.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[conversationID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (s *memStore) GetTurnRange(ctx context.Context, conversationID uuid.UUID, start, end int) ([]*storage.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Turn
	for _, t := range s.turns[conversationID] {
		if t.TurnNumber >= start && t.TurnNumber <= end {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) CreateSummary(ctx context.Context, summary *storage.Summary) (*storage.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *summary
	stored.ID = uuid.New()
	s.summaries[summary.ConversationID] = append(s.summaries[summary.ConversationID], &stored)
	return &stored, nil
}

func (s *memStore) GetSummaries(ctx context.Context, conversationID uuid.UUID) ([]*storage.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries[conversationID], nil
}

func (s *memStore) StoreConstraint(ctx context.Context, cand constraint.Candidate) (*constraint.Constraint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.constraintErr != nil {
		return nil, s.constraintErr
	}
	stored := &constraint.Constraint{
		ID:             uuid.New(),
		ConversationID: cand.ConversationID,
		Type:           cand.Type,
		Key:            cand.Key,
		Value:          cand.Value,
		TurnNumber:     cand.TurnNumber,
		IsActive:       true,
	}
	if cand.Supersedes() {
		for _, existing := range s.constraints[cand.ConversationID] {
			if existing.IsActive && existing.Key == cand.Key {
				existing.IsActive = false
				id := stored.ID
				existing.SupersededBy = &id
			}
		}
	}
	s.constraints[cand.ConversationID] = append(s.constraints[cand.ConversationID], stored)
	return stored, nil
}

func (s *memStore) ListActiveConstraints(ctx context.Context, conversationID uuid.UUID) ([]*constraint.Constraint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*constraint.Constraint
	for _, c := range s.constraints[conversationID] {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

type completionCall struct {
	messages     []types.Message
	systemPrompt string
	maxTokens    int
}

type fakeGen struct {
	mu          sync.Mutex
	response    string
	summary     string
	completions []completionCall
	summarized  []string
}

func (g *fakeGen) Complete(ctx context.Context, messages []types.Message, systemPrompt string, maxTokens int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completions = append(g.completions, completionCall{messages: messages, systemPrompt: systemPrompt, maxTokens: maxTokens})
	if g.response == "" {
		return "ok", nil
	}
	return g.response, nil
}

func (g *fakeGen) Summarize(ctx context.Context, text string, maxTokens int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.summarized = append(g.summarized, text)
	if g.summary == "" {
		return "condensed", nil
	}
	return g.summary, nil
}

func (g *fakeGen) lastCompletion(t *testing.T) completionCall {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.completions) == 0 {
		t.Fatal("no completions recorded")
	}
	return g.completions[len(g.completions)-1]
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type stubIndex struct {
	results []semantic.SearchResult
}

func (s *stubIndex) EnsureSchema(ctx context.Context) error                 { return nil }
func (s *stubIndex) Upsert(ctx context.Context, rec semantic.Record) error { return nil }
func (s *stubIndex) Search(ctx context.Context, q semantic.Query) ([]semantic.SearchResult, error) {
	return s.results, nil
}

func newTestClient(t *testing.T, store storage.Store, gen *fakeGen, config *Config) *Client {
	t.Helper()
	client, err := NewClient(Dependencies{
		Store:     store,
		Cache:     cache.NewInMemoryStore(),
		Generator: gen,
	}, config)
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	gen := &fakeGen{}

	_, err := NewClient(Dependencies{Generator: gen}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(Dependencies{Store: newMemStore()}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(Dependencies{Store: newMemStore(), Generator: gen, Embedder: stubEmbedder{}}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartConversation(t *testing.T) {
	store := newMemStore()
	gen := &fakeGen{response: "hello there"}
	client := newTestClient(t, store, gen, nil)
	defer client.Close()

	conv, result, err := client.StartConversation(context.Background(), "user-1", "", "hi")
	require.NoError(t, err)

	assert.Equal(t, "user-1", conv.UserID)
	assert.Equal(t, "session_user-1", conv.SessionID)

	assert.Equal(t, "hello there", result.Response)
	assert.Equal(t, 2, result.TurnNumber)
	assert.Greater(t, result.TokensUsed, 0)
	assert.Greater(t, result.ResponseTokens, 0)
	assert.False(t, result.Compressed)

	turns := store.turns[conv.ID]
	require.Len(t, turns, 2)
	assert.Equal(t, types.RoleUser, turns[0].Role)
	assert.Equal(t, 1, turns[0].TurnNumber)
	assert.Equal(t, types.RoleAssistant, turns[1].Role)
	assert.Equal(t, result.TokensUsed, turns[1].TokensUsed)
}

func TestSendMessageOwnership(t *testing.T) {
	store := newMemStore()
	client := newTestClient(t, store, &fakeGen{}, nil)
	defer client.Close()

	conv, _, err := client.StartConversation(context.Background(), "user-1", "", "hi")
	require.NoError(t, err)

	_, err = client.SendMessage(context.Background(), conv.ID, "user-2", "hi")
	assert.ErrorIs(t, err, ErrUserMismatch)

	_, err = client.SendMessage(context.Background(), uuid.New(), "user-1", "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestTurnNumbersAdvance(t *testing.T) {
	store := newMemStore()
	client := newTestClient(t, store, &fakeGen{}, nil)
	defer client.Close()

	conv, first, err := client.StartConversation(context.Background(), "user-1", "", "one")
	require.NoError(t, err)
	assert.Equal(t, 2, first.TurnNumber)

	second, err := client.SendMessage(context.Background(), conv.ID, "user-1", "two")
	require.NoError(t, err)
	assert.Equal(t, 4, second.TurnNumber)
}

func TestConstraintExtractionAndInjection(t *testing.T) {
	store := newMemStore()
	gen := &fakeGen{}
	client := newTestClient(t, store, gen, nil)
	defer client.Close()

	conv, _, err := client.StartConversation(context.Background(), "user-1", "", "I'm 26 years old")
	require.NoError(t, err)

	_, err = client.SendMessage(context.Background(), conv.ID, "user-1", "Actually I'm 27, not 26")
	require.NoError(t, err)

	active, err := store.ListActiveConstraints(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotEmpty(t, active)

	var correction *constraint.Constraint
	for _, c := range active {
		if c.Type == constraint.TypeCorrection {
			correction = c
		}
	}
	require.NotNil(t, correction, "correction constraint should be active")

	// The constraint block reached the system prompt of the same turn.
	call := gen.lastCompletion(t)
	assert.Contains(t, call.systemPrompt, DefaultBaseSystemPrompt)
	assert.Contains(t, call.systemPrompt, "CONSTRAINTS AND PREFERENCES")
	assert.Contains(t, call.systemPrompt, "Use 27 (corrected from 26)")
}

func TestConstraintDroppedHookOnStoreFailure(t *testing.T) {
	store := newMemStore()
	store.constraintErr = errors.New("connection refused")

	registry := hooks.NewRegistry()
	dropped := 0
	registry.OnConstraintDropped(func(ctx context.Context, conversationID uuid.UUID, cand constraint.Candidate, err error) {
		dropped++
	})

	client, err := NewClient(Dependencies{
		Store:     store,
		Cache:     cache.NewInMemoryStore(),
		Generator: &fakeGen{},
		Hooks:     registry,
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	// The turn still succeeds.
	_, _, err = client.StartConversation(context.Background(), "user-1", "", "Actually I'm 27, not 26")
	require.NoError(t, err)
	assert.Greater(t, dropped, 0)
}

func TestContextAssemblyOrder(t *testing.T) {
	store := newMemStore()
	gen := &fakeGen{}

	client, err := NewClient(Dependencies{
		Store:     store,
		Cache:     cache.NewInMemoryStore(),
		Generator: gen,
		Embedder:  stubEmbedder{},
		Index: &stubIndex{results: []semantic.SearchResult{
			{ConversationID: uuid.New(), Summary: "user prefers Postgres", Score: 0.9},
		}},
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	conv, _, err := client.StartConversation(context.Background(), "user-1", "", "first message")
	require.NoError(t, err)

	// Seed a long-term summary for the next turn.
	_, err = store.CreateSummary(context.Background(), &storage.Summary{
		ConversationID: conv.ID,
		Summary:        "the early conversation",
		TurnRangeStart: 1,
		TurnRangeEnd:   2,
	})
	require.NoError(t, err)

	_, err = client.SendMessage(context.Background(), conv.ID, "user-1", "second message")
	require.NoError(t, err)

	call := gen.lastCompletion(t)
	messages := call.messages

	require.GreaterOrEqual(t, len(messages), 4)
	assert.Equal(t, types.RoleSystem, messages[0].Role)
	assert.Equal(t, longTermPrefix+"the early conversation", messages[0].Content)
	assert.Equal(t, types.RoleSystem, messages[1].Role)
	assert.Equal(t, semanticPrefix+"user prefers Postgres", messages[1].Content)

	// The short-term window follows, ending with the incoming message
	// exactly once.
	last := messages[len(messages)-1]
	assert.Equal(t, types.RoleUser, last.Role)
	assert.Equal(t, "second message", last.Content)
	count := 0
	for _, m := range messages {
		if m.Role == types.RoleUser && m.Content == "second message" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCompressionTriggered(t *testing.T) {
	store := newMemStore()
	gen := &fakeGen{}
	client := newTestClient(t, store, gen, &Config{
		Budget: tokens.Budget{MaxTokensPerTurn: 1200, SystemReserve: 100, ResponseReserve: 100},
	})
	defer client.Close()

	long := strings.Repeat("a detailed message about infrastructure ", 100)

	conv, first, err := client.StartConversation(context.Background(), "user-1", "", long)
	require.NoError(t, err)
	assert.False(t, first.Compressed)

	second, err := client.SendMessage(context.Background(), conv.ID, "user-1", long+"more")
	require.NoError(t, err)

	assert.True(t, second.Compressed)
	assert.NotEmpty(t, gen.summarized)
	assert.Less(t, second.ContextTokens, client.config.Budget.MaxTokensPerTurn)

	// The compressed context carries a synthetic summary message.
	call := gen.lastCompletion(t)
	found := false
	for _, m := range call.messages {
		if m.Source == types.SourceCompression {
			found = true
			assert.True(t, strings.HasPrefix(m.Content, longTermPrefix))
		}
	}
	assert.True(t, found, "compressed context should contain a summary message")
}

func TestBackgroundSummarization(t *testing.T) {
	store := newMemStore()
	gen := &fakeGen{summary: "what happened so far"}
	client := newTestClient(t, store, gen, &Config{
		Compaction: &compaction.Config{SummaryInterval: 2},
	})

	registryDone := make(chan struct{}, 1)
	client.hooks.OnSummary(func(ctx context.Context, result *compaction.Result) error {
		registryDone <- struct{}{}
		return nil
	})

	conv, result, err := client.StartConversation(context.Background(), "user-1", "", "hello")
	require.NoError(t, err)
	require.Equal(t, 2, result.TurnNumber)

	client.Close()
	select {
	case <-registryDone:
	default:
		t.Fatal("summary hook was not invoked")
	}

	summaries := store.summaries[conv.ID]
	require.Len(t, summaries, 1)
	assert.Equal(t, "what happened so far", summaries[0].Summary)
	assert.Equal(t, 1, summaries[0].TurnRangeStart)
	assert.Equal(t, 2, summaries[0].TurnRangeEnd)
}

func TestGetMemory(t *testing.T) {
	store := newMemStore()
	client := newTestClient(t, store, &fakeGen{}, nil)
	defer client.Close()

	conv, _, err := client.StartConversation(context.Background(), "user-1", "", "hello")
	require.NoError(t, err)

	state, err := client.GetMemory(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, state.ConversationID)
	assert.Equal(t, 2, state.ShortTerm.TurnCount)
	assert.Empty(t, state.Semantic)

	_, err = client.GetMemory(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestResumeSession(t *testing.T) {
	store := newMemStore()
	client := newTestClient(t, store, &fakeGen{}, nil)
	defer client.Close()

	conv, _, err := client.StartConversation(context.Background(), "user-1", "support", "hello")
	require.NoError(t, err)

	resumed, err := client.ResumeSession(context.Background(), "user-1", "support")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, resumed.ID)

	_, err = client.ResumeSession(context.Background(), "user-1", "other")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
