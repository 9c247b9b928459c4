package hooks

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/convoctx/convoctx/compaction"
	"github.com/convoctx/convoctx/constraint"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with the default logger
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// Register attaches every logging hook to the registry
func (h *LoggingHooks) Register(r *Registry) {
	r.OnBeforeTurn(h.BeforeTurn)
	r.OnAfterTurn(h.AfterTurn)
	r.OnCompression(h.Compression)
	r.OnSummary(h.Summary)
	r.OnConstraintDropped(h.ConstraintDropped)
	r.OnIndexingFailed(h.IndexingFailed)
	r.OnCacheDegraded(h.CacheDegraded)
}

// BeforeTurn logs an incoming user turn
func (h *LoggingHooks) BeforeTurn(ctx context.Context, conversationID uuid.UUID, turnNumber int, content string) error {
	h.logger.Debug("processing turn",
		"conversation_id", conversationID,
		"turn_number", turnNumber,
		"content_length", len(content))
	return nil
}

// AfterTurn logs a stored assistant turn
func (h *LoggingHooks) AfterTurn(ctx context.Context, conversationID uuid.UUID, turnNumber int, response string, tokensUsed int) error {
	h.logger.Info("turn complete",
		"conversation_id", conversationID,
		"turn_number", turnNumber,
		"tokens_used", tokensUsed)
	return nil
}

// Compression logs the outcome of a compression pass
func (h *LoggingHooks) Compression(ctx context.Context, conversationID uuid.UUID, result *compaction.CompressResult) error {
	if !result.Compressed {
		h.logger.Debug("compression skipped", "conversation_id", conversationID)
		return nil
	}
	reduction := float64(0)
	if result.OriginalTokens > 0 {
		reduction = float64(result.OriginalTokens-result.CompressedTokens) / float64(result.OriginalTokens) * 100
	}
	h.logger.Info("context compressed",
		"conversation_id", conversationID,
		"original_tokens", result.OriginalTokens,
		"compressed_tokens", result.CompressedTokens,
		"reduction_pct", reduction,
		"messages_removed", result.MessagesRemoved)
	return nil
}

// Summary logs a completed summarization pass
func (h *LoggingHooks) Summary(ctx context.Context, result *compaction.Result) error {
	h.logger.Info("summary created",
		"conversation_id", result.ConversationID,
		"summary_id", result.SummaryID,
		"turn_range_start", result.TurnRangeStart,
		"turn_range_end", result.TurnRangeEnd,
		"tokens_saved", result.TokensSaved,
		"indexed", result.Indexed,
		"duration", result.Duration)
	return nil
}

// ConstraintDropped logs a constraint that could not be persisted
func (h *LoggingHooks) ConstraintDropped(ctx context.Context, conversationID uuid.UUID, cand constraint.Candidate, err error) {
	h.logger.Warn("constraint dropped",
		"conversation_id", conversationID,
		"type", cand.Type,
		"key", cand.Key,
		"turn_number", cand.TurnNumber,
		"error", err)
}

// IndexingFailed logs a summary that could not be indexed
func (h *LoggingHooks) IndexingFailed(ctx context.Context, conversationID, summaryID uuid.UUID, err error) {
	h.logger.Warn("semantic indexing failed",
		"conversation_id", conversationID,
		"summary_id", summaryID,
		"error", err)
}

// CacheDegraded logs a short-term cache fallback
func (h *LoggingHooks) CacheDegraded(ctx context.Context, conversationID uuid.UUID, err error) {
	h.logger.Warn("short-term cache degraded, falling back to storage",
		"conversation_id", conversationID,
		"error", err)
}

// MetricsHooks collects metrics for monitoring
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// Register attaches every metrics hook to the registry
func (h *MetricsHooks) Register(r *Registry) {
	r.OnAfterTurn(h.AfterTurn)
	r.OnCompression(h.Compression)
	r.OnSummary(h.Summary)
	r.OnConstraintDropped(h.ConstraintDropped)
	r.OnCacheDegraded(h.CacheDegraded)
}

// AfterTurn records turn token metrics
func (h *MetricsHooks) AfterTurn(ctx context.Context, conversationID uuid.UUID, turnNumber int, response string, tokensUsed int) error {
	h.OnMetric("convoctx.turn.tokens", float64(tokensUsed), nil)
	return nil
}

// Compression records compression metrics
func (h *MetricsHooks) Compression(ctx context.Context, conversationID uuid.UUID, result *compaction.CompressResult) error {
	if !result.Compressed {
		return nil
	}
	h.OnMetric("convoctx.compression.original_tokens", float64(result.OriginalTokens), nil)
	h.OnMetric("convoctx.compression.compressed_tokens", float64(result.CompressedTokens), nil)
	if result.OriginalTokens > 0 {
		h.OnMetric("convoctx.compression.reduction_pct",
			float64(result.OriginalTokens-result.CompressedTokens)/float64(result.OriginalTokens)*100, nil)
	}
	return nil
}

// Summary records summarization metrics
func (h *MetricsHooks) Summary(ctx context.Context, result *compaction.Result) error {
	h.OnMetric("convoctx.summary.created", 1, nil)
	h.OnMetric("convoctx.summary.tokens_saved", float64(result.TokensSaved), nil)
	if !result.Indexed {
		h.OnMetric("convoctx.summary.index_failed", 1, nil)
	}
	return nil
}

// ConstraintDropped records a dropped constraint
func (h *MetricsHooks) ConstraintDropped(ctx context.Context, conversationID uuid.UUID, cand constraint.Candidate, err error) {
	h.OnMetric("convoctx.constraint.dropped", 1, map[string]string{"type": string(cand.Type)})
}

// CacheDegraded records a cache fallback
func (h *MetricsHooks) CacheDegraded(ctx context.Context, conversationID uuid.UUID, err error) {
	h.OnMetric("convoctx.cache.degraded", 1, nil)
}
