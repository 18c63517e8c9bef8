package history

import (
	"context"
	"testing"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

func TestMemory_AppendAndGetRecentOrdering(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = m.Append(ctx, "s1", model.HistoryTurn{RequestID: string(rune('a' + i))})
	}

	turns, err := m.GetRecent(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].RequestID != "a" || turns[2].RequestID != "c" {
		t.Errorf("expected oldest-first ordering, got %+v", turns)
	}
}

func TestMemory_BoundedRetention(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = m.Append(ctx, "s1", model.HistoryTurn{RequestID: string(rune('a' + i))})
	}
	turns, _ := m.GetRecent(ctx, "s1", 10)
	if len(turns) != 2 {
		t.Fatalf("expected retention bounded to 2, got %d", len(turns))
	}
	if turns[0].RequestID != "d" || turns[1].RequestID != "e" {
		t.Errorf("expected the 2 most recent turns retained, got %+v", turns)
	}
}

func TestMemory_ZeroMaxTurnsYieldsEmptyReads(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	_ = m.Append(ctx, "s1", model.HistoryTurn{RequestID: "a"})
	turns, err := m.GetRecent(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected empty history reads with maxTurns=0, got %d", len(turns))
	}
}

func TestMemory_SessionsAreIndependent(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()
	_ = m.Append(ctx, "s1", model.HistoryTurn{RequestID: "a"})
	_ = m.Append(ctx, "s2", model.HistoryTurn{RequestID: "b"})

	t1, _ := m.GetRecent(ctx, "s1", 10)
	t2, _ := m.GetRecent(ctx, "s2", 10)
	if len(t1) != 1 || t1[0].RequestID != "a" {
		t.Errorf("expected s1 to only see its own turn, got %+v", t1)
	}
	if len(t2) != 1 || t2[0].RequestID != "b" {
		t.Errorf("expected s2 to only see its own turn, got %+v", t2)
	}
}

func TestMemory_GetRecentLimitsWithinSession(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = m.Append(ctx, "s1", model.HistoryTurn{RequestID: string(rune('a' + i))})
	}
	turns, _ := m.GetRecent(ctx, "s1", 2)
	if len(turns) != 2 {
		t.Fatalf("expected limit=2 to return 2 turns, got %d", len(turns))
	}
	if turns[0].RequestID != "d" || turns[1].RequestID != "e" {
		t.Errorf("expected the 2 most recent turns within limit, got %+v", turns)
	}
}
