// Package cache provides the short-term memory tier: a per-conversation
// sliding window of recent turns with a TTL. The durable store remains
// the source of truth; a missing or expired window is a cache miss, not
// an error.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/convoctx/convoctx/types"
)

// ErrUnavailable indicates a cache operation failed. Callers degrade to
// the durable store rather than failing the turn.
var ErrUnavailable = errors.New("cache: unavailable")

// Entry is one cached turn.
type Entry struct {
	Role       types.Role `json:"role"`
	Content    string     `json:"content"`
	TurnNumber int        `json:"turn_number"`
}

// Message converts a cached entry to its in-memory message form.
func (e Entry) Message() types.Message {
	return types.Message{Role: e.Role, Content: e.Content, Source: types.SourceConversation}
}

// Store is the short-term window storage. Reads on an absent key return
// an empty slice, never an error.
type Store interface {
	// Append adds an entry to the tail of a conversation window.
	Append(ctx context.Context, conversationID uuid.UUID, entry Entry) error

	// TrimToLastN drops all but the last n entries.
	TrimToLastN(ctx context.Context, conversationID uuid.UUID, n int) error

	// SetExpiry refreshes the window's TTL.
	SetExpiry(ctx context.Context, conversationID uuid.UUID, ttl time.Duration) error

	// ReadRange returns up to limit trailing entries in append order.
	// limit <= 0 means the whole window.
	ReadRange(ctx context.Context, conversationID uuid.UUID, limit int) ([]Entry, error)

	// Delete removes a conversation window.
	Delete(ctx context.Context, conversationID uuid.UUID) error
}
