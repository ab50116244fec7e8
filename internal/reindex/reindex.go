// Package reindex implements C12, the Vector Search Manager: a per-KB
// coalescing debounce state machine over KB change events, a manual
// trigger, and a background sweep, grounded on the teacher's
// cronjob.Scheduler ticker/singleton-guard idiom and on robfig/cron for the
// fixed-interval sweep.
package reindex

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/eventbus"
	"github.com/vellumhq/vellum/internal/pkg/logs"
)

// Trigger is the MCP-backed reindex entry point (C13's callTool wrapper),
// kept as an injected interface so this package never imports mcpclient
// directly.
type Trigger interface {
	ReindexVector(ctx context.Context, kbID string, force bool) (core.ReindexJob, error)
	GetReindexStatus(ctx context.Context, kbID string) (core.ReindexJob, error)
}

const (
	debounceWindow = 2 * time.Second
	pollInterval   = 3 * time.Second
)

type kbState struct {
	mu        sync.Mutex
	timer     *time.Timer
	dispatching bool
	pendingAgain bool
}

// Manager is the concrete C12 implementation: one state machine per KBID.
type Manager struct {
	trigger Trigger
	bus     *eventbus.Bus

	mu     sync.Mutex
	states map[string]*kbState

	sweepInterval time.Duration
	cron          *cron.Cron
	sweepEntryID  cron.EntryID
}

func New(trigger Trigger, bus *eventbus.Bus, sweepInterval time.Duration) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	m := &Manager{
		trigger:       trigger,
		bus:           bus,
		states:        make(map[string]*kbState),
		sweepInterval: sweepInterval,
		cron:          cron.New(),
	}
	bus.SubscribeAsync(core.EventFileCreated, m.onEvent)
	bus.SubscribeAsync(core.EventFileModified, m.onEvent)
	bus.SubscribeAsync(core.EventFileDeleted, m.onEvent)
	bus.SubscribeAsync(core.EventBatchChanges, m.onEvent)
	bus.SubscribeAsync(core.EventGitCommit, m.onEvent)
	bus.SubscribeAsync(core.EventGitPull, m.onEvent)
	return m
}

// Start schedules the background sweep. knownKBs is polled at each tick
// rather than stored statically, since users can configure KBs at runtime.
func (m *Manager) Start(knownKBs func() []string) {
	spec := "@every " + m.sweepInterval.String()
	id, err := m.cron.AddFunc(spec, func() {
		for _, kbID := range knownKBs() {
			m.sweep(kbID)
		}
	})
	if err != nil {
		logs.Error("[reindex] schedule sweep: %v", err)
		return
	}
	m.sweepEntryID = id
	m.cron.Start()
}

func (m *Manager) Stop() {
	m.cron.Stop()
}

func (m *Manager) onEvent(e core.KBChangeEvent) {
	if e.KBID == "" {
		return
	}
	m.scheduleDebounced(e.KBID)
}

func (m *Manager) stateFor(kbID string) *kbState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[kbID]
	if !ok {
		st = &kbState{}
		m.states[kbID] = st
	}
	return st
}

// scheduleDebounced implements Idle -> Pending -> Dispatching: a new event
// during Pending resets the 2s window; one during Dispatching is recorded
// and coalesces into the next window once the in-flight run finishes.
func (m *Manager) scheduleDebounced(kbID string) {
	st := m.stateFor(kbID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.dispatching {
		st.pendingAgain = true
		return
	}

	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(debounceWindow, func() {
		m.dispatch(kbID, false)
	})
}

// TriggerReindex skips the coalescing window (manual trigger, §4.12).
func (m *Manager) TriggerReindex(kbID string) {
	st := m.stateFor(kbID)
	st.mu.Lock()
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.mu.Unlock()
	m.dispatch(kbID, false)
}

func (m *Manager) sweep(kbID string) {
	m.dispatch(kbID, true)
}

func (m *Manager) dispatch(kbID string, force bool) {
	st := m.stateFor(kbID)

	st.mu.Lock()
	if st.dispatching {
		st.pendingAgain = true
		st.mu.Unlock()
		return
	}
	st.dispatching = true
	st.mu.Unlock()

	ctx := context.Background()
	job, err := m.trigger.ReindexVector(ctx, kbID, force)
	if err != nil {
		logs.Error("[reindex] start reindex for %s: %v", kbID, err)
	} else {
		m.poll(ctx, kbID, job)
	}

	st.mu.Lock()
	st.dispatching = false
	again := st.pendingAgain
	st.pendingAgain = false
	st.mu.Unlock()

	if again {
		m.scheduleDebounced(kbID)
	}
}

func (m *Manager) poll(ctx context.Context, kbID string, job core.ReindexJob) {
	if job.IsTerminal() {
		logs.CtxInfo(ctx, "[reindex] %s finished immediately: %s", kbID, job.Status)
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		current, err := m.trigger.GetReindexStatus(ctx, kbID)
		if err != nil {
			logs.Error("[reindex] poll status for %s: %v", kbID, err)
			return
		}
		logs.CtxInfo(ctx, "[reindex] %s: %s (%d docs, %d chunks)", kbID, current.Status, current.Stats.Docs, current.Stats.Chunks)
		if current.IsTerminal() {
			return
		}
	}
}
