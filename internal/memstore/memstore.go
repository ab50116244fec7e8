// Package memstore implements C16, Memory Storage: a factory selecting
// between a per-user JSON file store, a vector-embedding store, and an
// LLM-backed mem-agent store, adapted from the teacher's provider.Registry
// factory-by-name idiom (internal/provider/registry.go newProvider switch).
package memstore

import (
	"context"
	"fmt"

	"github.com/vellumhq/vellum/internal/config"
	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/memstore/vector"
)

// Store is the storage interface every backend implements (§4.16). Every
// call is keyed by userID; no backend may read or write across users.
type Store interface {
	StoreMemory(ctx context.Context, userID int64, content, category string, tags []string, metadata map[string]any) (string, error)
	RetrieveMemory(ctx context.Context, userID int64, query, category string, tags []string, limit int) ([]core.MemoryRecord, error)
	ListCategories(ctx context.Context, userID int64) ([]core.CategoryCount, error)
	Delete(ctx context.Context, userID int64, id string) error
	Clear(ctx context.Context, userID int64, category string) error
}

// defaultVectorDim is used for store_backend=qdrant collections when a
// dimension isn't otherwise known; it matches the common 384-dim
// sentence-transformers MiniLM output the default embedding_provider uses.
const defaultVectorDim = 384

// New selects a Store backend per config.StorageConfig.Type. kbID scopes
// the vector backend's collection namespace (§4.16); agent is only
// consulted for the mem-agent backend.
func New(cfg config.StorageConfig, kbID string, agent core.AgentClient) (Store, error) {
	switch cfg.Type {
	case "", "json":
		return NewJSONStore(cfg.DataDir), nil

	case "vector":
		embedder := vector.NewHTTPEmbedder(cfg.Vector.EmbeddingURL, cfg.Vector.EmbeddingProvider)

		var index vector.Index
		switch cfg.Vector.StoreBackend {
		case "qdrant":
			qi, err := vector.NewQdrantIndex(cfg.Vector.QdrantURL, defaultVectorDim)
			if err != nil {
				return nil, fmt.Errorf("memstore: qdrant index: %w", err)
			}
			index = qi
		case "", "faiss":
			index = vector.NewLocalIndex()
		default:
			return nil, fmt.Errorf("memstore: unknown vector store_backend %q", cfg.Vector.StoreBackend)
		}

		return vector.NewVectorStore(embedder, index, kbID), nil

	case "mem-agent":
		if agent == nil {
			return nil, fmt.Errorf("memstore: mem-agent backend requires an agent client")
		}
		return NewMemAgentStore(agent, cfg.DataDir), nil

	default:
		return nil, fmt.Errorf("memstore: unknown storage type %q", cfg.Type)
	}
}
