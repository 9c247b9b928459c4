package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis list per conversation.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed short-term store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func windowKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

// Append pushes an entry to the tail of the conversation list.
func (s *RedisStore) Append(ctx context.Context, conversationID uuid.UUID, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := s.client.RPush(ctx, windowKey(conversationID), payload).Err(); err != nil {
		return fmt.Errorf("%w: append: %v", ErrUnavailable, err)
	}
	return nil
}

// TrimToLastN keeps only the last n list elements.
func (s *RedisStore) TrimToLastN(ctx context.Context, conversationID uuid.UUID, n int) error {
	if n <= 0 {
		return s.Delete(ctx, conversationID)
	}

	if err := s.client.LTrim(ctx, windowKey(conversationID), int64(-n), -1).Err(); err != nil {
		return fmt.Errorf("%w: trim: %v", ErrUnavailable, err)
	}
	return nil
}

// SetExpiry refreshes the window TTL.
func (s *RedisStore) SetExpiry(ctx context.Context, conversationID uuid.UUID, ttl time.Duration) error {
	if err := s.client.Expire(ctx, windowKey(conversationID), ttl).Err(); err != nil {
		return fmt.Errorf("%w: expire: %v", ErrUnavailable, err)
	}
	return nil
}

// ReadRange returns up to limit trailing entries in append order. An
// absent key yields an empty result.
func (s *RedisStore) ReadRange(ctx context.Context, conversationID uuid.UUID, limit int) ([]Entry, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.client.LRange(ctx, windowKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrUnavailable, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes the conversation window.
func (s *RedisStore) Delete(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.client.Del(ctx, windowKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return nil
}
