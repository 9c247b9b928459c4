package hooks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/convoctx/convoctx/compaction"
	"github.com/convoctx/convoctx/constraint"
)

// BeforeTurnHook is called before a user turn is processed
type BeforeTurnHook func(ctx context.Context, conversationID uuid.UUID, turnNumber int, content string) error

// AfterTurnHook is called after an assistant response has been produced and stored
type AfterTurnHook func(ctx context.Context, conversationID uuid.UUID, turnNumber int, response string, tokensUsed int) error

// CompressionHook is called after a context compression pass
type CompressionHook func(ctx context.Context, conversationID uuid.UUID, result *compaction.CompressResult) error

// SummaryHook is called after a background summarization pass completes
type SummaryHook func(ctx context.Context, result *compaction.Result) error

// ConstraintDroppedHook is notified when an extracted constraint could not be
// persisted. The turn proceeds without it; the hook is the only record.
type ConstraintDroppedHook func(ctx context.Context, conversationID uuid.UUID, cand constraint.Candidate, err error)

// IndexingFailedHook is notified when a stored summary could not be indexed
// for semantic retrieval
type IndexingFailedHook func(ctx context.Context, conversationID, summaryID uuid.UUID, err error)

// CacheDegradedHook is notified when the short-term cache fails and reads
// fall back to durable storage
type CacheDegradedHook func(ctx context.Context, conversationID uuid.UUID, err error)

// Registry holds all registered hooks
type Registry struct {
	mu                sync.RWMutex
	beforeTurn        []BeforeTurnHook
	afterTurn         []AfterTurnHook
	compression       []CompressionHook
	summary           []SummaryHook
	constraintDropped []ConstraintDroppedHook
	indexingFailed    []IndexingFailedHook
	cacheDegraded     []CacheDegradedHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		beforeTurn:        []BeforeTurnHook{},
		afterTurn:         []AfterTurnHook{},
		compression:       []CompressionHook{},
		summary:           []SummaryHook{},
		constraintDropped: []ConstraintDroppedHook{},
		indexingFailed:    []IndexingFailedHook{},
		cacheDegraded:     []CacheDegradedHook{},
	}
}

// OnBeforeTurn registers a hook to be called before a user turn is processed
func (r *Registry) OnBeforeTurn(hook BeforeTurnHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeTurn = append(r.beforeTurn, hook)
}

// OnAfterTurn registers a hook to be called after an assistant turn is stored
func (r *Registry) OnAfterTurn(hook AfterTurnHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterTurn = append(r.afterTurn, hook)
}

// OnCompression registers a hook to be called after a compression pass
func (r *Registry) OnCompression(hook CompressionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compression = append(r.compression, hook)
}

// OnSummary registers a hook to be called after a summarization pass
func (r *Registry) OnSummary(hook SummaryHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = append(r.summary, hook)
}

// OnConstraintDropped registers a hook to be notified of dropped constraints
func (r *Registry) OnConstraintDropped(hook ConstraintDroppedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constraintDropped = append(r.constraintDropped, hook)
}

// OnIndexingFailed registers a hook to be notified of failed index writes
func (r *Registry) OnIndexingFailed(hook IndexingFailedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexingFailed = append(r.indexingFailed, hook)
}

// OnCacheDegraded registers a hook to be notified of cache fallbacks
func (r *Registry) OnCacheDegraded(hook CacheDegradedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheDegraded = append(r.cacheDegraded, hook)
}

// TriggerBeforeTurn calls all registered before-turn hooks
func (r *Registry) TriggerBeforeTurn(ctx context.Context, conversationID uuid.UUID, turnNumber int, content string) error {
	r.mu.RLock()
	hooks := make([]BeforeTurnHook, len(r.beforeTurn))
	copy(hooks, r.beforeTurn)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, conversationID, turnNumber, content); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterTurn calls all registered after-turn hooks
func (r *Registry) TriggerAfterTurn(ctx context.Context, conversationID uuid.UUID, turnNumber int, response string, tokensUsed int) error {
	r.mu.RLock()
	hooks := make([]AfterTurnHook, len(r.afterTurn))
	copy(hooks, r.afterTurn)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, conversationID, turnNumber, response, tokensUsed); err != nil {
			return err
		}
	}
	return nil
}

// TriggerCompression calls all registered compression hooks
func (r *Registry) TriggerCompression(ctx context.Context, conversationID uuid.UUID, result *compaction.CompressResult) error {
	r.mu.RLock()
	hooks := make([]CompressionHook, len(r.compression))
	copy(hooks, r.compression)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, conversationID, result); err != nil {
			return err
		}
	}
	return nil
}

// TriggerSummary calls all registered summary hooks
func (r *Registry) TriggerSummary(ctx context.Context, result *compaction.Result) error {
	r.mu.RLock()
	hooks := make([]SummaryHook, len(r.summary))
	copy(hooks, r.summary)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// TriggerConstraintDropped notifies all registered constraint-dropped hooks.
// Notification hooks cannot veto; they have no error return.
func (r *Registry) TriggerConstraintDropped(ctx context.Context, conversationID uuid.UUID, cand constraint.Candidate, err error) {
	r.mu.RLock()
	hooks := make([]ConstraintDroppedHook, len(r.constraintDropped))
	copy(hooks, r.constraintDropped)
	r.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, conversationID, cand, err)
	}
}

// TriggerIndexingFailed notifies all registered indexing-failed hooks
func (r *Registry) TriggerIndexingFailed(ctx context.Context, conversationID, summaryID uuid.UUID, err error) {
	r.mu.RLock()
	hooks := make([]IndexingFailedHook, len(r.indexingFailed))
	copy(hooks, r.indexingFailed)
	r.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, conversationID, summaryID, err)
	}
}

// TriggerCacheDegraded notifies all registered cache-degraded hooks
func (r *Registry) TriggerCacheDegraded(ctx context.Context, conversationID uuid.UUID, err error) {
	r.mu.RLock()
	hooks := make([]CacheDegradedHook, len(r.cacheDegraded))
	copy(hooks, r.cacheDegraded)
	r.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, conversationID, err)
	}
}
