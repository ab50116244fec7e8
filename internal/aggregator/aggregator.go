// Package aggregator implements C5, the Message Aggregator: a per-chat
// sliding-window grouper driven by a single ticker, grounded directly on
// the teacher's cronjob.Scheduler loop()/tick() shape (one ticker scanning
// a map, each dispatch detached into its own goroutine so the tick loop
// never blocks).
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/pkg/logs"
)

// DispatchFunc receives a sealed MessageGroup exactly once.
type DispatchFunc func(group *core.MessageGroup)

// Aggregator keeps at most one open MessageGroup per chatId and seals it
// once idle beyond GroupTimeout, dispatching outside the map lock.
type Aggregator struct {
	groupTimeout time.Duration
	tick         time.Duration
	dispatch     DispatchFunc

	mu     sync.Mutex
	groups map[int64]*core.MessageGroup

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Aggregator. groupTimeout is the idle threshold before a
// group is sealed; tick is the scan interval (must be ≤1s per §4.5 spec.md).
func New(groupTimeout, tick time.Duration, dispatch DispatchFunc) *Aggregator {
	if tick <= 0 || tick > time.Second {
		tick = time.Second
	}
	return &Aggregator{
		groupTimeout: groupTimeout,
		tick:         tick,
		dispatch:     dispatch,
		groups:       make(map[int64]*core.MessageGroup),
	}
}

// Start begins the background scan loop.
func (a *Aggregator) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop(ctx)
	}()
}

// Stop cancels the background loop; any in-flight dispatch is allowed to
// complete (it was already detached into its own goroutine).
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

// Add appends msg to chatId's open group, creating one if absent. If a
// dispatch for the same chatId is in flight, the group map entry was
// already cleared by sealLocked, so Add naturally starts a new group.
func (a *Aggregator) Add(msg core.IncomingMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	group, ok := a.groups[msg.ChatID]
	if !ok {
		group = &core.MessageGroup{}
		a.groups[msg.ChatID] = group
	}
	group.Add(msg)
}

func (a *Aggregator) loop(ctx context.Context) {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.scan(now)
		}
	}
}

// scan finds groups idle beyond groupTimeout, removes them from the map
// under the lock, then dispatches each on its own detached goroutine —
// the dispatch callback never runs while the lock is held.
func (a *Aggregator) scan(now time.Time) {
	var due []*core.MessageGroup

	a.mu.Lock()
	for chatID, group := range a.groups {
		if len(group.Messages) == 0 {
			continue
		}
		idle := now.Sub(time.Unix(group.LastTimestamp, 0))
		if idle >= a.groupTimeout {
			due = append(due, group)
			delete(a.groups, chatID)
		}
	}
	a.mu.Unlock()

	for _, group := range due {
		g := group
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logs.Error("[aggregator] dispatch panic for chat %d: %v", g.ChatID, r)
				}
			}()
			a.dispatch(g)
		}()
	}
}
