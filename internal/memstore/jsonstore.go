package memstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/vellumhq/vellum/internal/consts"
	"github.com/vellumhq/vellum/internal/core"
)

const memoriesFileName = "memories.json"

// JSONStore is the default memstore backend: one memories.json per user,
// substring search, atomic write-temp-then-rename saves (grounded on
// config.InstanceManager's save path).
type JSONStore struct {
	dataDir string

	mu    sync.Mutex
	cache map[int64][]core.MemoryRecord
}

func NewJSONStore(dataDir string) *JSONStore {
	return &JSONStore{dataDir: dataDir, cache: make(map[int64][]core.MemoryRecord)}
}

func (s *JSONStore) path(userID int64) string {
	return filepath.Join(consts.UserMemoryDir(s.dataDir, userID), memoriesFileName)
}

func (s *JSONStore) load(userID int64) ([]core.MemoryRecord, error) {
	if cached, ok := s.cache[userID]; ok {
		return cached, nil
	}
	path := s.path(userID)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memstore: read %s: %w", path, err)
	}
	var records []core.MemoryRecord
	if err := sonic.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("memstore: decode %s: %w", path, err)
	}
	s.cache[userID] = records
	return records, nil
}

func (s *JSONStore) saveLocked(userID int64, records []core.MemoryRecord) error {
	path := s.path(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memstore: mkdir: %w", err)
	}

	raw, err := sonic.Marshal(records)
	if err != nil {
		return fmt.Errorf("memstore: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("memstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("memstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("memstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("memstore: replace: %w", err)
	}

	s.cache[userID] = records
	return nil
}

func (s *JSONStore) StoreMemory(_ context.Context, userID int64, content, category string, tags []string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(userID)
	if err != nil {
		return "", err
	}

	record := core.MemoryRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Category:  category,
		Tags:      tags,
		Metadata:  metadata,
		CreatedAt: time.Now().Unix(),
	}
	records = append(records, record)

	if err := s.saveLocked(userID, records); err != nil {
		return "", err
	}
	return record.ID, nil
}

func (s *JSONStore) RetrieveMemory(_ context.Context, userID int64, query, category string, tags []string, limit int) ([]core.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(userID)
	if err != nil {
		return nil, err
	}

	var out []core.MemoryRecord
	queryLower := strings.ToLower(query)
	for _, r := range records {
		if category != "" && r.Category != category {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(r.Tags, tags) {
			continue
		}
		if queryLower != "" && !strings.Contains(strings.ToLower(r.Content), queryLower) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *JSONStore) ListCategories(_ context.Context, userID int64) ([]core.CategoryCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(userID)
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

func (s *JSONStore) Delete(_ context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(userID)
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return s.saveLocked(userID, kept)
}

func (s *JSONStore) Clear(_ context.Context, userID int64, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category == "" {
		return s.saveLocked(userID, nil)
	}

	records, err := s.load(userID)
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.Category != category {
			kept = append(kept, r)
		}
	}
	return s.saveLocked(userID, kept)
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
