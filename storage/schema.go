package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the durable tier. Statements are idempotent so
// EnsureSchema can run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS convoctx_conversations (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	total_turns INTEGER NOT NULL DEFAULT 0,
	total_tokens_used BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_convoctx_conversations_user_session
	ON convoctx_conversations (user_id, session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS convoctx_turns (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES convoctx_conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	turn_number INTEGER NOT NULL,
	tokens_used INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (conversation_id, turn_number)
);

CREATE TABLE IF NOT EXISTS convoctx_summaries (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES convoctx_conversations(id) ON DELETE CASCADE,
	summary TEXT NOT NULL,
	compressed_tokens INTEGER NOT NULL DEFAULT 0,
	turn_range_start INTEGER NOT NULL,
	turn_range_end INTEGER NOT NULL,
	key_facts JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_convoctx_summaries_range
	ON convoctx_summaries (conversation_id, turn_range_start);

CREATE TABLE IF NOT EXISTS convoctx_constraints (
	id UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES convoctx_conversations(id) ON DELETE CASCADE,
	constraint_type TEXT NOT NULL,
	constraint_key TEXT NOT NULL,
	constraint_value JSONB NOT NULL,
	turn_number INTEGER NOT NULL,
	superseded_by UUID,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_convoctx_constraints_active
	ON convoctx_constraints (conversation_id, constraint_key)
	WHERE is_active;
`

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
