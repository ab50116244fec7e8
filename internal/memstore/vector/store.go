package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vellumhq/vellum/internal/core"
)

// VectorStore adapts an Embedder+Index pair to the memstore.Store contract.
// Categories and tags ride along as payload fields since the index itself
// is schema-less; ListCategories does a local tally over what
// RetrieveMemory returns for an empty query (at most 50 records) rather
// than a server-side aggregation, since neither Index implementation
// exposes one.
type VectorStore struct {
	embedder Embedder
	index    Index
	kbID     string
}

func NewVectorStore(embedder Embedder, index Index, kbID string) *VectorStore {
	return &VectorStore{embedder: embedder, index: index, kbID: kbID}
}

func (s *VectorStore) collection(userID int64) string {
	return CollectionName(s.kbID, userID)
}

func (s *VectorStore) StoreMemory(ctx context.Context, userID int64, content, category string, tags []string, metadata map[string]any) (string, error) {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("vector store: embed: %w", err)
	}

	id := uuid.NewString()
	payload := map[string]any{
		"content":    content,
		"category":   category,
		"tags":       tags,
		"created_at": time.Now().Unix(),
	}
	for k, v := range metadata {
		payload[k] = v
	}

	if err := s.index.Upsert(ctx, s.collection(userID), id, vec, payload); err != nil {
		return "", fmt.Errorf("vector store: upsert: %w", err)
	}
	return id, nil
}

func (s *VectorStore) RetrieveMemory(ctx context.Context, userID int64, query, category string, tags []string, limit int) ([]core.MemoryRecord, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector store: embed query: %w", err)
	}

	searchLimit := limit
	if searchLimit <= 0 {
		searchLimit = 50
	}
	hits, err := s.index.Search(ctx, s.collection(userID), vec, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("vector store: search: %w", err)
	}

	out := make([]core.MemoryRecord, 0, len(hits))
	for _, h := range hits {
		record, ok := recordFromPayload(h.ID, userID, h.Payload)
		if !ok {
			continue
		}
		if category != "" && record.Category != category {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(record.Tags, tags) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *VectorStore) ListCategories(ctx context.Context, userID int64) ([]core.CategoryCount, error) {
	records, err := s.RetrieveMemory(ctx, userID, "", "", nil, 0)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		cat := r.Category
		if cat == "" {
			cat = "uncategorized"
		}
		if _, seen := counts[cat]; !seen {
			order = append(order, cat)
		}
		counts[cat]++
	}

	out := make([]core.CategoryCount, 0, len(order))
	for _, cat := range order {
		out = append(out, core.CategoryCount{Category: cat, Count: counts[cat]})
	}
	return out, nil
}

func (s *VectorStore) Delete(ctx context.Context, userID int64, id string) error {
	return s.index.Delete(ctx, s.collection(userID), id)
}

func (s *VectorStore) Clear(ctx context.Context, userID int64, category string) error {
	records, err := s.RetrieveMemory(ctx, userID, "", category, nil, 0)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := s.index.Delete(ctx, s.collection(userID), r.ID); err != nil {
			return err
		}
	}
	return nil
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func recordFromPayload(id string, userID int64, payload map[string]any) (core.MemoryRecord, bool) {
	content, _ := payload["content"].(string)
	category, _ := payload["category"].(string)

	var tags []string
	if raw, ok := payload["tags"].([]string); ok {
		tags = raw
	} else if raw, ok := payload["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	var createdAt int64
	switch v := payload["created_at"].(type) {
	case int64:
		createdAt = v
	case float64:
		createdAt = int64(v)
	}

	return core.MemoryRecord{
		ID:        id,
		UserID:    userID,
		Content:   content,
		Category:  category,
		Tags:      tags,
		Metadata:  payload,
		CreatedAt: createdAt,
	}, true
}
