package convoctx

import (
	"errors"

	"github.com/convoctx/convoctx/cache"
	"github.com/convoctx/convoctx/compaction"
	"github.com/convoctx/convoctx/llm"
	"github.com/convoctx/convoctx/semantic"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConversationNotFound is returned when a conversation does not exist
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrUserMismatch is returned when a caller addresses a conversation
	// owned by a different user
	ErrUserMismatch = errors.New("user ID does not match conversation owner")
)

// Failure taxonomy. Turn-critical failures (persistence, generation)
// propagate to the caller wrapped in these sentinels. Best-effort side
// paths (constraint persistence, summary indexing, cache reads) never
// fail the turn; their errors reach hooks carrying the same sentinels.
var (
	// ErrPersistence marks a durable-store failure.
	ErrPersistence = errors.New("persistence failure")

	// ErrGeneration marks a model generation failure.
	ErrGeneration = errors.New("generation failure")

	// ErrBudgetExceeded marks a context that could not be brought under
	// the token budget. Compression is the mitigation, so it surfaces as
	// a hard error only when compression itself fails.
	ErrBudgetExceeded = errors.New("token budget exceeded")

	// ErrVectorIndex marks a vector index failure.
	ErrVectorIndex = semantic.ErrIndex

	// ErrEmbedding marks an embedding failure.
	ErrEmbedding = semantic.ErrEmbedding

	// ErrCache marks a short-term cache failure.
	ErrCache = cache.ErrUnavailable

	// ErrCompressionFailed marks a failed compression pass.
	ErrCompressionFailed = compaction.ErrCompressionFailed
)

// Retryable reports whether the error is a transient store, network, or
// model failure worth retrying. Configuration, ownership, and budget
// logic errors are not retryable.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrPersistence),
		errors.Is(err, ErrVectorIndex),
		errors.Is(err, ErrEmbedding),
		errors.Is(err, ErrGeneration),
		errors.Is(err, ErrCache),
		errors.Is(err, llm.ErrGenerationFailed),
		errors.Is(err, compaction.ErrStorageError),
		errors.Is(err, compaction.ErrSummarizationFailed):
		return true
	}
	return false
}
