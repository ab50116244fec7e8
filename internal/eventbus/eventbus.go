// Package eventbus implements C4, a typed publish/subscribe registry with
// synchronous and worker-pool-scheduled asynchronous handlers.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/pkg/logs"
)

// Handler reacts to one KBChangeEvent. A panic or error inside a handler
// must not affect delivery to other handlers.
type Handler func(core.KBChangeEvent)

// Unsubscribe removes a previously registered handler.
type Unsubscribe func()

type subscription struct {
	id      int64
	handler Handler
}

// Bus is one registry per EventType, matching the teacher's
// registry-per-concern idiom (internal/channel.Registry,
// internal/provider.Registry) generalized to pub/sub.
type Bus struct {
	mu   sync.RWMutex
	sync_ map[core.EventType][]subscription
	async map[core.EventType][]subscription
	seq  atomic.Int64

	pool *workerPool
}

// New creates a Bus backed by a bounded worker pool of the given size
// (Design Notes §9: async handlers post to a bounded pool rather than
// "fire-and-forget" goroutines, to keep backpressure bounded under bursts).
func New(workers int) *Bus {
	if workers <= 0 {
		workers = 4
	}
	return &Bus{
		sync_: make(map[core.EventType][]subscription),
		async: make(map[core.EventType][]subscription),
		pool:  newWorkerPool(workers),
	}
}

// Subscribe registers a synchronous handler invoked before Publish returns.
func (b *Bus) Subscribe(t core.EventType, h Handler) Unsubscribe {
	return b.subscribe(&b.sync_, t, h)
}

// SubscribeAsync registers a handler scheduled on the bounded worker pool.
func (b *Bus) SubscribeAsync(t core.EventType, h Handler) Unsubscribe {
	return b.subscribe(&b.async, t, h)
}

func (b *Bus) subscribe(set *map[core.EventType][]subscription, t core.EventType, h Handler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.seq.Add(1)
	(*set)[t] = append((*set)[t], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := (*set)[t]
		for i, s := range subs {
			if s.id == id {
				(*set)[t] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every current subscriber of e.Type. Sync handlers
// run before Publish returns, in registration order; async handlers are
// scheduled on the worker pool and may run after Publish returns. A handler
// panic is recovered and logged so it cannot break delivery to the rest.
func (b *Bus) Publish(e core.KBChangeEvent) {
	b.mu.RLock()
	syncSubs := append([]subscription(nil), b.sync_[e.Type]...)
	asyncSubs := append([]subscription(nil), b.async[e.Type]...)
	b.mu.RUnlock()

	for _, s := range syncSubs {
		invokeSafely(s.handler, e)
	}
	for _, s := range asyncSubs {
		handler := s.handler
		b.pool.submit(func() { invokeSafely(handler, e) })
	}
}

// Stop stops the worker pool, waiting for in-flight async handlers; queued
// handlers that have not started may not run.
func (b *Bus) Stop() {
	b.pool.stop()
}

func invokeSafely(h Handler, e core.KBChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			logs.Error("[eventbus] handler panic for event %s: %v", e.Type, r)
		}
	}()
	h(e)
}
