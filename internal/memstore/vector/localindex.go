package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// LocalIndex is an in-memory flat cosine-similarity index, grounded on the
// faiss store_backend option when no Qdrant endpoint is configured. It
// trades scale for zero external dependencies: every Search is a linear
// scan, fine for a personal knowledge base's document count.
type LocalIndex struct {
	mu          sync.RWMutex
	collections map[string]map[string]entry
}

type entry struct {
	vector  []float32
	payload map[string]any
}

func NewLocalIndex() *LocalIndex {
	return &LocalIndex{collections: make(map[string]map[string]entry)}
}

func (i *LocalIndex) Upsert(_ context.Context, collection, id string, vec []float32, payload map[string]any) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	points, ok := i.collections[collection]
	if !ok {
		points = make(map[string]entry)
		i.collections[collection] = points
	}
	points[id] = entry{vector: vec, payload: payload}
	return nil
}

func (i *LocalIndex) Search(_ context.Context, collection string, vec []float32, topK int) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	points := i.collections[collection]
	hits := make([]Hit, 0, len(points))
	for id, e := range points {
		hits = append(hits, Hit{ID: id, Score: cosineSimilarity(vec, e.vector), Payload: e.payload})
	}

	sort.Slice(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (i *LocalIndex) Delete(_ context.Context, collection, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if points, ok := i.collections[collection]; ok {
		delete(points, id)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
