package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/convoctx/convoctx/constraint"
	"github.com/convoctx/convoctx/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store defines the durable tier: conversations, their turns, rolling
// summaries, and persisted constraints.
type Store interface {
	// Conversation operations
	CreateConversation(ctx context.Context, userID, sessionID string) (*Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error)
	// GetConversationBySession returns the most recent conversation for
	// the (user, session) pair, or ErrNotFound.
	GetConversationBySession(ctx context.Context, userID, sessionID string) (*Conversation, error)

	// Turn operations. AddTurn assigns the next contiguous turn number
	// and bumps the conversation aggregates in the same transaction.
	AddTurn(ctx context.Context, conversationID uuid.UUID, role types.Role, content string, tokensUsed int) (*Turn, error)
	GetTurns(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Turn, error)
	// GetRecentTurns returns the last limit turns, still in ascending
	// turn order.
	GetRecentTurns(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Turn, error)
	GetTurnRange(ctx context.Context, conversationID uuid.UUID, start, end int) ([]*Turn, error)

	// Summary operations
	CreateSummary(ctx context.Context, summary *Summary) (*Summary, error)
	// GetSummaries returns summaries ordered by ascending range start.
	GetSummaries(ctx context.Context, conversationID uuid.UUID) ([]*Summary, error)

	// Constraint operations. StoreConstraint persists a candidate in one
	// transaction: superseding candidates deactivate the prior active
	// row for the key with a superseded_by link before the new row is
	// inserted. Storing a candidate equivalent to an already-active
	// constraint returns the existing row unchanged.
	StoreConstraint(ctx context.Context, cand constraint.Candidate) (*constraint.Constraint, error)
	// ListActiveConstraints returns active constraints ordered by
	// ascending turn number.
	ListActiveConstraints(ctx context.Context, conversationID uuid.UUID) ([]*constraint.Constraint, error)
}

// Conversation is a durable conversation record. Aggregates are bumped
// on every stored turn; rows are never deleted.
type Conversation struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	TotalTurns      int       `json:"total_turns"`
	TotalTokensUsed int       `json:"total_tokens_used"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Turn is one stored message of a conversation. Turn numbers are
// contiguous and strictly increasing per conversation.
type Turn struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Role           types.Role `json:"role"`
	Content        string     `json:"content"`
	TurnNumber     int        `json:"turn_number"`
	TokensUsed     int        `json:"tokens_used"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Message converts a stored turn to its in-memory message form.
func (t *Turn) Message() types.Message {
	return types.Message{Role: t.Role, Content: t.Content, Source: types.SourceConversation}
}

// Summary is a compressed record of a closed turn range. Summaries are
// immutable and their ranges do not overlap.
type Summary struct {
	ID               uuid.UUID      `json:"id"`
	ConversationID   uuid.UUID      `json:"conversation_id"`
	Summary          string         `json:"summary"`
	CompressedTokens int            `json:"compressed_tokens"`
	TurnRangeStart   int            `json:"turn_range_start"`
	TurnRangeEnd     int            `json:"turn_range_end"`
	KeyFacts         map[string]any `json:"key_facts,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
