package mcpmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/vellumhq/vellum/internal/core"
)

// ReindexTrigger adapts the memstore server's reindex_vector/
// get_reindex_status tools to reindex.Trigger, so C12 never imports
// mcpclient/mcpmanager directly.
type ReindexTrigger struct {
	manager    *Manager
	serverName string
	callTimeout time.Duration
}

func NewReindexTrigger(manager *Manager, serverName string, callTimeout time.Duration) *ReindexTrigger {
	return &ReindexTrigger{manager: manager, serverName: serverName, callTimeout: callTimeout}
}

func (t *ReindexTrigger) ReindexVector(ctx context.Context, kbID string, force bool) (core.ReindexJob, error) {
	client, ok := t.manager.Client(t.serverName)
	if !ok {
		return core.ReindexJob{}, fmt.Errorf("mcpmanager: %s not connected", t.serverName)
	}
	out, err := client.CallTool(ctx, "reindex_vector", map[string]any{"kb_id": kbID, "force": force}, t.callTimeout)
	if err != nil {
		return core.ReindexJob{}, err
	}
	return decodeJob(kbID, out), nil
}

func (t *ReindexTrigger) GetReindexStatus(ctx context.Context, kbID string) (core.ReindexJob, error) {
	client, ok := t.manager.Client(t.serverName)
	if !ok {
		return core.ReindexJob{}, fmt.Errorf("mcpmanager: %s not connected", t.serverName)
	}
	out, err := client.CallTool(ctx, "get_reindex_status", map[string]any{"kb_id": kbID}, 0)
	if err != nil {
		return core.ReindexJob{}, err
	}
	return decodeJob(kbID, out), nil
}

func decodeJob(kbID string, out map[string]any) core.ReindexJob {
	job := core.ReindexJob{KBID: kbID, Status: core.ReindexStarted}
	if out == nil {
		return job
	}
	if status, ok := out["status"].(string); ok {
		job.Status = core.ReindexStatus(status)
	}
	if msg, ok := out["message"].(string); ok {
		job.Message = msg
	}
	if docs, ok := out["docs"].(float64); ok {
		job.Stats.Docs = int(docs)
	}
	if chunks, ok := out["chunks"].(float64); ok {
		job.Stats.Chunks = int(chunks)
	}
	return job
}
