// Package semantic provides the cross-conversation memory tier:
// summaries embedded into a vector index and retrieved by similarity,
// always scoped to the owning user.
package semantic

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Tier failure sentinels. Callers treat this tier as best-effort and
// use these to classify what went wrong.
var (
	// ErrEmbedding indicates the embedding call failed.
	ErrEmbedding = errors.New("semantic: embedding failed")

	// ErrIndex indicates a vector index operation failed.
	ErrIndex = errors.New("semantic: index operation failed")
)

// Record is an indexed summary.
type Record struct {
	SummaryID      uuid.UUID
	ConversationID uuid.UUID
	UserID         string
	Text           string
	TurnRangeStart int
	TurnRangeEnd   int
	Vector         []float32
}

// Query is a similarity search request. UserID is mandatory; results
// never cross user boundaries.
type Query struct {
	Vector   []float32
	UserID   string
	Limit    int
	MinScore float64
}

// SearchResult is one similarity hit. Score is normalized to [0, 1],
// higher is more relevant.
type SearchResult struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Summary        string    `json:"summary"`
	Score          float64   `json:"relevance_score"`
}

// Index stores and searches summary vectors.
type Index interface {
	// EnsureSchema creates the index class if it does not exist.
	EnsureSchema(ctx context.Context) error

	// Upsert writes a record, replacing any prior record with the same
	// summary ID.
	Upsert(ctx context.Context, rec Record) error

	// Search returns hits ordered by descending score, filtered to the
	// query's user and MinScore.
	Search(ctx context.Context, q Query) ([]SearchResult, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
