package compaction

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for compaction operations.
var (
	// ErrInvalidConfig indicates invalid compaction configuration.
	ErrInvalidConfig = errors.New("invalid compaction configuration")

	// ErrCompressionFailed indicates the compression summary could not
	// be generated.
	ErrCompressionFailed = errors.New("compression failed")

	// ErrSummarizationFailed indicates the summarization call failed.
	ErrSummarizationFailed = errors.New("summarization failed")

	// ErrNoTurnsToSummarize indicates the requested turn range is empty.
	ErrNoTurnsToSummarize = errors.New("no turns to summarize")

	// ErrStorageError indicates a database operation failed.
	ErrStorageError = errors.New("storage operation failed")
)

// CompactionError provides structured error context for compaction operations.
type CompactionError struct {
	// Op is the operation that failed (e.g., "Compress", "CompactTurnRange")
	Op string

	// ConversationID is the conversation ID if applicable
	ConversationID uuid.UUID

	// Err is the underlying error
	Err error

	// Context holds additional key-value pairs for debugging
	Context map[string]any
}

// Error returns a formatted error message.
func (e *CompactionError) Error() string {
	msg := fmt.Sprintf("compaction %s failed", e.Op)
	if e.ConversationID != uuid.Nil {
		msg += fmt.Sprintf(" for conversation %s", e.ConversationID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *CompactionError) Unwrap() error {
	return e.Err
}

// NewCompactionError creates a new CompactionError with the given operation and underlying error.
func NewCompactionError(op string, err error) *CompactionError {
	return &CompactionError{
		Op:      op,
		Err:     err,
		Context: make(map[string]any),
	}
}

// WithConversation sets the conversation ID on the error and returns the error for chaining.
func (e *CompactionError) WithConversation(conversationID uuid.UUID) *CompactionError {
	e.ConversationID = conversationID
	return e
}

// WithContext adds a key-value pair to the error context and returns the error for chaining.
func (e *CompactionError) WithContext(key string, value any) *CompactionError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WrapError wraps an error with operation context. If err is nil, returns nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewCompactionError(op, err)
}

// WrapErrorWithConversation wraps an error with operation and conversation context.
func WrapErrorWithConversation(op string, conversationID uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	return NewCompactionError(op, err).WithConversation(conversationID)
}
