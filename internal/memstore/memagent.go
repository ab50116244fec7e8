package memstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vellumhq/vellum/internal/consts"
	"github.com/vellumhq/vellum/internal/core"
)

// MemAgentStore is the mem-agent backend (§4.16): rather than writing
// records itself, it delegates the memory operation to the Agent contract
// as a natural-language instruction against a per-user memory.md file,
// the same way noteservice delegates note-taking to the agent. If the
// agent invocation fails, every call falls back to a JSONStore so memory
// operations never hard-fail on an agent outage.
type MemAgentStore struct {
	agent    core.AgentClient
	fallback *JSONStore
	dataDir  string
}

func NewMemAgentStore(agent core.AgentClient, dataDir string) *MemAgentStore {
	return &MemAgentStore{agent: agent, fallback: NewJSONStore(dataDir), dataDir: dataDir}
}

func (s *MemAgentStore) memoryFile(userID int64) string {
	return filepath.Join(consts.UserMemoryDir(s.dataDir, userID), "memory.md")
}

func (s *MemAgentStore) StoreMemory(ctx context.Context, userID int64, content, category string, tags []string, metadata map[string]any) (string, error) {
	req := core.AgentRequest{
		Text: fmt.Sprintf("Append this memory to %s under category %q (tags: %v):\n\n%s",
			s.memoryFile(userID), category, tags, content),
		Mode:       core.ModeAgent,
		WorkingDir: filepath.Dir(s.memoryFile(userID)),
		UserID:     userID,
	}

	result, err := s.agent.Process(ctx, req)
	if err != nil {
		return s.fallback.StoreMemory(ctx, userID, content, category, tags, metadata)
	}
	if len(result.FilesEdited) > 0 {
		return result.FilesEdited[0], nil
	}
	return s.fallback.StoreMemory(ctx, userID, content, category, tags, metadata)
}

func (s *MemAgentStore) RetrieveMemory(ctx context.Context, userID int64, query, category string, tags []string, limit int) ([]core.MemoryRecord, error) {
	req := core.AgentRequest{
		Text: fmt.Sprintf("Search %s for memories matching %q (category %q, tags %v) and answer with the matching entries.",
			s.memoryFile(userID), query, category, tags),
		Mode:       core.ModeAsk,
		WorkingDir: filepath.Dir(s.memoryFile(userID)),
		UserID:     userID,
	}

	result, err := s.agent.Process(ctx, req)
	if err != nil || result.Answer == "" {
		return s.fallback.RetrieveMemory(ctx, userID, query, category, tags, limit)
	}

	return []core.MemoryRecord{{
		UserID:   userID,
		Content:  result.Answer,
		Category: category,
		Tags:     tags,
	}}, nil
}

func (s *MemAgentStore) ListCategories(ctx context.Context, userID int64) ([]core.CategoryCount, error) {
	return s.fallback.ListCategories(ctx, userID)
}

func (s *MemAgentStore) Delete(ctx context.Context, userID int64, id string) error {
	return s.fallback.Delete(ctx, userID, id)
}

func (s *MemAgentStore) Clear(ctx context.Context, userID int64, category string) error {
	return s.fallback.Clear(ctx, userID, category)
}
