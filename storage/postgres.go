package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoctx/convoctx/constraint"
	"github.com/convoctx/convoctx/types"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context with the given transaction
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore implements Store using PostgreSQL with pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// inTx runs fn inside the context transaction if one is present,
// otherwise inside a new transaction that commits on success.
func (s *PostgresStore) inTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx, tx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx), tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateConversation creates a new conversation for a user session
func (s *PostgresStore) CreateConversation(ctx context.Context, userID, sessionID string) (*Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		INSERT INTO convoctx_conversations (id, user_id, session_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, user_id, session_id, total_turns, total_tokens_used, created_at, updated_at
	`

	var conv Conversation
	err := s.getQuerier(ctx).QueryRow(ctx, query, uuid.New(), userID, sessionID).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.SessionID,
		&conv.TotalTurns,
		&conv.TotalTokensUsed,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return &conv, nil
}

// GetConversation retrieves a conversation by ID
func (s *PostgresStore) GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	query := `
		SELECT id, user_id, session_id, total_turns, total_tokens_used, created_at, updated_at
		FROM convoctx_conversations
		WHERE id = $1
	`

	var conv Conversation
	err := s.getQuerier(ctx).QueryRow(ctx, query, conversationID).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.SessionID,
		&conv.TotalTurns,
		&conv.TotalTokensUsed,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// GetConversationBySession retrieves the most recent conversation for a
// user and session pair
func (s *PostgresStore) GetConversationBySession(ctx context.Context, userID, sessionID string) (*Conversation, error) {
	query := `
		SELECT id, user_id, session_id, total_turns, total_tokens_used, created_at, updated_at
		FROM convoctx_conversations
		WHERE user_id = $1 AND session_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	var conv Conversation
	err := s.getQuerier(ctx).QueryRow(ctx, query, userID, sessionID).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.SessionID,
		&conv.TotalTurns,
		&conv.TotalTokensUsed,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation for user %s session %s: %w", userID, sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// AddTurn stores a turn. The turn number is assigned from the
// conversation's aggregate row inside the transaction, so concurrent
// writers cannot produce gaps or duplicates.
func (s *PostgresStore) AddTurn(ctx context.Context, conversationID uuid.UUID, role types.Role, content string, tokensUsed int) (*Turn, error) {
	var turn Turn

	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		bump := `
			UPDATE convoctx_conversations
			SET total_turns = total_turns + 1,
			    total_tokens_used = total_tokens_used + $1,
			    updated_at = NOW()
			WHERE id = $2
			RETURNING total_turns
		`

		var turnNumber int
		err := tx.QueryRow(ctx, bump, tokensUsed, conversationID).Scan(&turnNumber)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to bump conversation aggregates: %w", err)
		}

		insert := `
			INSERT INTO convoctx_turns (id, conversation_id, role, content, turn_number, tokens_used, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			RETURNING id, conversation_id, role, content, turn_number, tokens_used, created_at
		`

		err = tx.QueryRow(ctx, insert, uuid.New(), conversationID, string(role), content, turnNumber, tokensUsed).Scan(
			&turn.ID,
			&turn.ConversationID,
			&turn.Role,
			&turn.Content,
			&turn.TurnNumber,
			&turn.TokensUsed,
			&turn.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &turn, nil
}

// GetTurns retrieves turns ordered by turn number. limit <= 0 means all.
func (s *PostgresStore) GetTurns(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Turn, error) {
	query := `
		SELECT id, conversation_id, role, content, turn_number, tokens_used, created_at
		FROM convoctx_turns
		WHERE conversation_id = $1
		ORDER BY turn_number ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.getQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// GetRecentTurns retrieves the last limit turns, returned in ascending
// turn order.
func (s *PostgresStore) GetRecentTurns(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Turn, error) {
	query := `
		SELECT id, conversation_id, role, content, turn_number, tokens_used, created_at
		FROM convoctx_turns
		WHERE conversation_id = $1
		ORDER BY turn_number DESC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.getQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetTurnRange retrieves turns with numbers in [start, end], inclusive.
func (s *PostgresStore) GetTurnRange(ctx context.Context, conversationID uuid.UUID, start, end int) ([]*Turn, error) {
	query := `
		SELECT id, conversation_id, role, content, turn_number, tokens_used, created_at
		FROM convoctx_turns
		WHERE conversation_id = $1 AND turn_number BETWEEN $2 AND $3
		ORDER BY turn_number ASC
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, conversationID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query turn range: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// scanTurns is a helper to scan turn rows
func scanTurns(rows pgx.Rows) ([]*Turn, error) {
	var turns []*Turn

	for rows.Next() {
		var turn Turn
		err := rows.Scan(
			&turn.ID,
			&turn.ConversationID,
			&turn.Role,
			&turn.Content,
			&turn.TurnNumber,
			&turn.TokensUsed,
			&turn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, &turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	return turns, nil
}

// CreateSummary stores an immutable summary of a closed turn range
func (s *PostgresStore) CreateSummary(ctx context.Context, summary *Summary) (*Summary, error) {
	if summary.TurnRangeEnd < summary.TurnRangeStart {
		return nil, fmt.Errorf("invalid turn range [%d, %d]", summary.TurnRangeStart, summary.TurnRangeEnd)
	}

	keyFactsJSON, err := json.Marshal(summary.KeyFacts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key facts: %w", err)
	}

	query := `
		INSERT INTO convoctx_summaries
			(id, conversation_id, summary, compressed_tokens, turn_range_start, turn_range_end, key_facts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`

	stored := *summary
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}

	err = s.getQuerier(ctx).QueryRow(ctx, query,
		stored.ID,
		stored.ConversationID,
		stored.Summary,
		stored.CompressedTokens,
		stored.TurnRangeStart,
		stored.TurnRangeEnd,
		keyFactsJSON,
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary: %w", err)
	}

	return &stored, nil
}

// GetSummaries retrieves all summaries ordered by range start
func (s *PostgresStore) GetSummaries(ctx context.Context, conversationID uuid.UUID) ([]*Summary, error) {
	query := `
		SELECT id, conversation_id, summary, compressed_tokens, turn_range_start, turn_range_end, key_facts, created_at
		FROM convoctx_summaries
		WHERE conversation_id = $1
		ORDER BY turn_range_start ASC
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var summary Summary
		var keyFactsJSON []byte

		err := rows.Scan(
			&summary.ID,
			&summary.ConversationID,
			&summary.Summary,
			&summary.CompressedTokens,
			&summary.TurnRangeStart,
			&summary.TurnRangeEnd,
			&keyFactsJSON,
			&summary.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}

		if len(keyFactsJSON) > 0 {
			if err := json.Unmarshal(keyFactsJSON, &summary.KeyFacts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal key facts: %w", err)
			}
		}

		summaries = append(summaries, &summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summaries: %w", err)
	}

	return summaries, nil
}

// StoreConstraint persists a candidate constraint. Supersession and
// insertion happen in one transaction: a reader never observes the key
// without an active row, and never observes two active rows for it.
func (s *PostgresStore) StoreConstraint(ctx context.Context, cand constraint.Candidate) (*constraint.Constraint, error) {
	valueJSON, err := constraint.EncodeValue(cand.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode constraint value: %w", err)
	}

	var stored *constraint.Constraint

	err = s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// An equal active constraint makes the store a no-op.
		existing := `
			SELECT id, conversation_id, constraint_type, constraint_key, constraint_value,
			       turn_number, superseded_by, is_active, created_at
			FROM convoctx_constraints
			WHERE conversation_id = $1
			  AND constraint_key = $2
			  AND constraint_type = $3
			  AND constraint_value = $4::jsonb
			  AND is_active = TRUE
		`
		row, err := scanConstraint(tx.QueryRow(ctx, existing, cand.ConversationID, cand.Key, string(cand.Type), valueJSON))
		if err == nil {
			stored = row
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check existing constraint: %w", err)
		}

		newID := uuid.New()

		if cand.Supersedes() {
			deactivate := `
				UPDATE convoctx_constraints
				SET is_active = FALSE, superseded_by = $1
				WHERE conversation_id = $2
				  AND constraint_key = $3
				  AND is_active = TRUE
			`
			if _, err := tx.Exec(ctx, deactivate, newID, cand.ConversationID, cand.Key); err != nil {
				return fmt.Errorf("failed to supersede constraint: %w", err)
			}
		}

		insert := `
			INSERT INTO convoctx_constraints
				(id, conversation_id, constraint_type, constraint_key, constraint_value, turn_number, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6, TRUE, NOW())
			RETURNING id, conversation_id, constraint_type, constraint_key, constraint_value,
			          turn_number, superseded_by, is_active, created_at
		`
		row, err = scanConstraint(tx.QueryRow(ctx, insert,
			newID, cand.ConversationID, string(cand.Type), cand.Key, valueJSON, cand.TurnNumber))
		if err != nil {
			return fmt.Errorf("failed to insert constraint: %w", err)
		}
		stored = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// ListActiveConstraints retrieves active constraints ordered by the turn
// they were stated in
func (s *PostgresStore) ListActiveConstraints(ctx context.Context, conversationID uuid.UUID) ([]*constraint.Constraint, error) {
	query := `
		SELECT id, conversation_id, constraint_type, constraint_key, constraint_value,
		       turn_number, superseded_by, is_active, created_at
		FROM convoctx_constraints
		WHERE conversation_id = $1 AND is_active = TRUE
		ORDER BY turn_number ASC
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	defer rows.Close()

	var constraints []*constraint.Constraint
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan constraint: %w", err)
		}
		constraints = append(constraints, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constraints: %w", err)
	}

	return constraints, nil
}

// scanConstraint scans one constraint row and decodes its typed value.
func scanConstraint(row pgx.Row) (*constraint.Constraint, error) {
	var c constraint.Constraint
	var typ string
	var valueJSON []byte

	err := row.Scan(
		&c.ID,
		&c.ConversationID,
		&typ,
		&c.Key,
		&valueJSON,
		&c.TurnNumber,
		&c.SupersededBy,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = constraint.Type(typ)
	c.Value, err = constraint.DecodeValue(c.Type, valueJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode constraint value: %w", err)
	}

	return &c, nil
}
