package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/vellumhq/vellum/internal/core"
)

type stubAgent struct {
	result core.AgentResult
	err    error
}

func (s *stubAgent) Process(context.Context, core.AgentRequest) (core.AgentResult, error) {
	return s.result, s.err
}

func TestMemAgentStoreFallsBackToJSONOnAgentError(t *testing.T) {
	dir := t.TempDir()
	store := NewMemAgentStore(&stubAgent{err: errors.New("agent unavailable")}, dir)
	ctx := context.Background()

	id, err := store.StoreMemory(ctx, 1, "remember this", "work", nil, nil)
	if err != nil {
		t.Fatalf("StoreMemory() error = %v", err)
	}
	if id == "" {
		t.Fatal("expected a fallback-assigned id")
	}

	hits, err := store.RetrieveMemory(ctx, 1, "remember", "", nil, 10)
	if err != nil {
		t.Fatalf("RetrieveMemory() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected the fallback JSON store to have the record, got %v", hits)
	}
}

func TestMemAgentStoreUsesAgentResultWhenAvailable(t *testing.T) {
	dir := t.TempDir()
	store := NewMemAgentStore(&stubAgent{result: core.AgentResult{FilesEdited: []string{"memory.md"}}}, dir)
	ctx := context.Background()

	id, err := store.StoreMemory(ctx, 1, "remember this", "work", nil, nil)
	if err != nil {
		t.Fatalf("StoreMemory() error = %v", err)
	}
	if id != "memory.md" {
		t.Fatalf("StoreMemory() id = %q, want memory.md", id)
	}
}
