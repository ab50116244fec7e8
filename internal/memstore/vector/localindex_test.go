package vector

import (
	"context"
	"testing"
)

func TestLocalIndexSearchRanksByCosineSimilarity(t *testing.T) {
	idx := NewLocalIndex()
	ctx := context.Background()

	if err := idx.Upsert(ctx, "kb::user_1", "a", []float32{1, 0}, map[string]any{"content": "a"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := idx.Upsert(ctx, "kb::user_1", "b", []float32{0, 1}, map[string]any{"content": "b"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	hits, err := idx.Search(ctx, "kb::user_1", []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a" {
		t.Fatalf("Search() = %v, want [a, b]", hits)
	}
}

func TestLocalIndexDelete(t *testing.T) {
	idx := NewLocalIndex()
	ctx := context.Background()

	_ = idx.Upsert(ctx, "kb::user_1", "a", []float32{1, 0}, nil)
	if err := idx.Delete(ctx, "kb::user_1", "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	hits, err := idx.Search(ctx, "kb::user_1", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after delete, got %v", hits)
	}
}

func TestCollectionNameIsolatesUsers(t *testing.T) {
	if CollectionName("kb1", 1) == CollectionName("kb1", 2) {
		t.Fatal("expected distinct collection names per user")
	}
}
