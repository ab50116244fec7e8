package mcphub

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/reindex"
)

var _ reindex.Trigger = (*LocalTrigger)(nil)

// LocalTrigger implements reindex.Trigger by walking a KB's markdown tree
// directly and re-embedding each file into that KB's Store, so a
// single-process deployment reindexes itself without a second MCP hop
// (§4.12/§4.15 spec.md). ReindexJob is owned here, one non-terminal job per
// kbId at a time.
type LocalTrigger struct {
	kbPath KBPathResolver
	stores StoreResolver

	mu   sync.Mutex
	jobs map[string]*core.ReindexJob
}

// KBPathResolver locates the on-disk root of a knowledge base by ID.
type KBPathResolver func(kbID string) (string, bool)

func NewLocalTrigger(kbPath KBPathResolver, stores StoreResolver) *LocalTrigger {
	return &LocalTrigger{kbPath: kbPath, stores: stores, jobs: make(map[string]*core.ReindexJob)}
}

func (t *LocalTrigger) ReindexVector(_ context.Context, kbID string, force bool) (core.ReindexJob, error) {
	t.mu.Lock()
	if job, ok := t.jobs[kbID]; ok && !job.IsTerminal() && !force {
		t.mu.Unlock()
		return core.ReindexJob{}, fmt.Errorf("AlreadyRunning: reindex already in progress for %s", kbID)
	}
	job := &core.ReindexJob{KBID: kbID, Status: core.ReindexStarted, StartedAt: time.Now().Unix()}
	t.jobs[kbID] = job
	t.mu.Unlock()

	go t.run(kbID, job)

	return *job, nil
}

func (t *LocalTrigger) GetReindexStatus(_ context.Context, kbID string) (core.ReindexJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[kbID]
	if !ok {
		return core.ReindexJob{}, fmt.Errorf("reindex: no job recorded for %s", kbID)
	}
	return *job, nil
}

func (t *LocalTrigger) run(kbID string, job *core.ReindexJob) {
	t.setStatus(kbID, core.ReindexProcessing)

	path, ok := t.kbPath(kbID)
	if !ok {
		t.finish(kbID, core.ReindexFailed, core.ReindexStats{Errors: []string{"kb path not found"}})
		return
	}
	store, err := t.stores(kbID)
	if err != nil {
		t.finish(kbID, core.ReindexFailed, core.ReindexStats{Errors: []string{err.Error()}})
		return
	}

	ctx := context.Background()
	stats := core.ReindexStats{}
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".md") {
			return nil
		}
		raw, readErr := os.ReadFile(p)
		if readErr != nil {
			stats.Errors = append(stats.Errors, readErr.Error())
			return nil
		}

		rel, _ := filepath.Rel(path, p)
		category := filepath.Dir(rel)
		if category == "." {
			category = "general"
		}

		if _, storeErr := store.StoreMemory(ctx, 0, string(raw), category, nil, map[string]any{"path": rel}); storeErr != nil {
			stats.Errors = append(stats.Errors, storeErr.Error())
			return nil
		}
		stats.Docs++
		stats.Chunks++
		return nil
	})
	if walkErr != nil {
		stats.Errors = append(stats.Errors, walkErr.Error())
	}

	status := core.ReindexCompleted
	if stats.Docs == 0 && len(stats.Errors) > 0 {
		status = core.ReindexFailed
	}
	t.finish(kbID, status, stats)
}

func (t *LocalTrigger) setStatus(kbID string, status core.ReindexStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[kbID]; ok {
		job.Status = status
	}
}

func (t *LocalTrigger) finish(kbID string, status core.ReindexStatus, stats core.ReindexStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[kbID]
	if !ok {
		job = &core.ReindexJob{KBID: kbID}
		t.jobs[kbID] = job
	}
	job.Status = status
	job.Stats = stats
	job.CompletedAt = time.Now().Unix()
}
