package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a process-local Store. It backs tests and
// cache-less deployments; TTL is honored lazily on read.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*window
	now     func() time.Time
}

type window struct {
	entries  []Entry
	expireAt time.Time
}

// NewInMemoryStore creates an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[uuid.UUID]*window),
		now:     time.Now,
	}
}

func (s *InMemoryStore) live(conversationID uuid.UUID) *window {
	w, ok := s.windows[conversationID]
	if !ok {
		return nil
	}
	if !w.expireAt.IsZero() && s.now().After(w.expireAt) {
		delete(s.windows, conversationID)
		return nil
	}
	return w
}

// Append adds an entry to the tail of the conversation window.
func (s *InMemoryStore) Append(_ context.Context, conversationID uuid.UUID, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.live(conversationID)
	if w == nil {
		w = &window{}
		s.windows[conversationID] = w
	}
	w.entries = append(w.entries, entry)
	return nil
}

// TrimToLastN drops all but the last n entries.
func (s *InMemoryStore) TrimToLastN(_ context.Context, conversationID uuid.UUID, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.live(conversationID)
	if w == nil {
		return nil
	}
	if n <= 0 {
		delete(s.windows, conversationID)
		return nil
	}
	if len(w.entries) > n {
		w.entries = append([]Entry(nil), w.entries[len(w.entries)-n:]...)
	}
	return nil
}

// SetExpiry refreshes the window TTL.
func (s *InMemoryStore) SetExpiry(_ context.Context, conversationID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w := s.live(conversationID); w != nil {
		w.expireAt = s.now().Add(ttl)
	}
	return nil
}

// ReadRange returns up to limit trailing entries in append order.
func (s *InMemoryStore) ReadRange(_ context.Context, conversationID uuid.UUID, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.live(conversationID)
	if w == nil {
		return nil, nil
	}

	entries := w.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]Entry(nil), entries...), nil
}

// Delete removes the conversation window.
func (s *InMemoryStore) Delete(_ context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, conversationID)
	return nil
}
