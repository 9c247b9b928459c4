package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/convoctx/convoctx/types"
)

func TestInMemoryStoreWindow(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	convID := uuid.New()

	for i := 1; i <= 12; i++ {
		err := store.Append(ctx, convID, Entry{Role: types.RoleUser, Content: "m", TurnNumber: i})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := store.TrimToLastN(ctx, convID, 10); err != nil {
			t.Fatalf("TrimToLastN failed: %v", err)
		}
	}

	entries, err := store.ReadRange(ctx, convID, 0)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("Expected window of 10, got %d", len(entries))
	}
	if entries[0].TurnNumber != 3 || entries[9].TurnNumber != 12 {
		t.Errorf("Expected turns 3..12, got %d..%d", entries[0].TurnNumber, entries[9].TurnNumber)
	}

	tail, err := store.ReadRange(ctx, convID, 4)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if len(tail) != 4 || tail[0].TurnNumber != 9 {
		t.Errorf("Expected trailing turns 9..12, got %+v", tail)
	}
}

func TestInMemoryStoreMissingKey(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	entries, err := store.ReadRange(ctx, uuid.New(), 5)
	if err != nil {
		t.Fatalf("ReadRange on missing key failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty result, got %d entries", len(entries))
	}

	if err := store.TrimToLastN(ctx, uuid.New(), 3); err != nil {
		t.Errorf("TrimToLastN on missing key failed: %v", err)
	}
	if err := store.Delete(ctx, uuid.New()); err != nil {
		t.Errorf("Delete on missing key failed: %v", err)
	}
}

func TestInMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	convID := uuid.New()

	now := time.Now()
	store.now = func() time.Time { return now }

	if err := store.Append(ctx, convID, Entry{Role: types.RoleUser, Content: "m", TurnNumber: 1}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.SetExpiry(ctx, convID, time.Hour); err != nil {
		t.Fatalf("SetExpiry failed: %v", err)
	}

	entries, err := store.ReadRange(ctx, convID, 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Expected 1 entry before expiry, got %d (err %v)", len(entries), err)
	}

	now = now.Add(2 * time.Hour)

	entries, err = store.ReadRange(ctx, convID, 0)
	if err != nil {
		t.Fatalf("ReadRange after expiry failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected expired window to read empty, got %d entries", len(entries))
	}
}

func TestInMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	convID := uuid.New()

	if err := store.Append(ctx, convID, Entry{Role: types.RoleUser, Content: "m", TurnNumber: 1}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Delete(ctx, convID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	entries, err := store.ReadRange(ctx, convID, 0)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty window after delete, got %d entries", len(entries))
	}
}

func TestEntryMessage(t *testing.T) {
	entry := Entry{Role: types.RoleAssistant, Content: "hi", TurnNumber: 2}
	msg := entry.Message()
	if msg.Role != types.RoleAssistant || msg.Content != "hi" {
		t.Errorf("Unexpected message: %+v", msg)
	}
	if msg.Source != types.SourceConversation {
		t.Errorf("Expected conversation source, got %s", msg.Source)
	}
}
