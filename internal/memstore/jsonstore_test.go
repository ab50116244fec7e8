package memstore

import (
	"context"
	"testing"
)

func TestJSONStoreStoreAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)
	ctx := context.Background()

	id, err := store.StoreMemory(ctx, 1, "remember the launch date", "work", []string{"launch"}, nil)
	if err != nil {
		t.Fatalf("StoreMemory() error = %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	hits, err := store.RetrieveMemory(ctx, 1, "launch date", "", nil, 10)
	if err != nil {
		t.Fatalf("RetrieveMemory() error = %v", err)
	}
	if len(hits) != 1 || hits[0].ID != id {
		t.Fatalf("RetrieveMemory() = %v, want one hit with id %s", hits, id)
	}
}

func TestJSONStoreIsolatesUsers(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)
	ctx := context.Background()

	if _, err := store.StoreMemory(ctx, 1, "user one's secret", "personal", nil, nil); err != nil {
		t.Fatalf("StoreMemory() error = %v", err)
	}

	hits, err := store.RetrieveMemory(ctx, 2, "secret", "", nil, 10)
	if err != nil {
		t.Fatalf("RetrieveMemory() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected user 2 to see no memories from user 1, got %v", hits)
	}
}

func TestJSONStoreDeleteAndClear(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(dir)
	ctx := context.Background()

	id, _ := store.StoreMemory(ctx, 1, "one", "a", nil, nil)
	_, _ = store.StoreMemory(ctx, 1, "two", "b", nil, nil)

	if err := store.Delete(ctx, 1, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	hits, _ := store.RetrieveMemory(ctx, 1, "", "", nil, 0)
	if len(hits) != 1 {
		t.Fatalf("expected 1 remaining memory, got %d", len(hits))
	}

	if err := store.Clear(ctx, 1, ""); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	hits, _ = store.RetrieveMemory(ctx, 1, "", "", nil, 0)
	if len(hits) != 0 {
		t.Fatalf("expected 0 memories after Clear, got %d", len(hits))
	}
}
