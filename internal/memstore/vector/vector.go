// Package vector implements the vector storageType backend for C16:
// pluggable embeddings (sentence-transformers/Infinity over HTTP) and a
// pluggable vector store (an in-memory flat index for local/FAISS-style
// use, or Qdrant over its gRPC client), ranked by cosine similarity.
package vector

import (
	"context"
	"strconv"
)

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is one ranked vector search result.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Index is the pluggable vector store half of the backend.
type Index interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Hit, error)
	Delete(ctx context.Context, collection, id string) error
}

// CollectionName derives the collection a (kbID, userID) pair is stored
// under, keeping per-user isolation (§4.16 invariant) even within a
// shared KB collection namespace.
func CollectionName(kbID string, userID int64) string {
	return kbID + "::user_" + strconv.FormatInt(userID, 10)
}
