// Package usercontext implements C6, the User Context Cache: a per-user
// registry of lazily created long-lived objects (aggregators, agent
// sessions), grounded on the teacher's gateway.Gateway.agents sync.Map
// idiom for caching one entry per key. Each Cache is guarded by one mutex
// that GetOrCreate holds while the factory runs, so creating one user's
// entry waits for any other user's creation in progress.
package usercontext

import (
	"sync"
)

// Cache lazily creates and caches one value of type T per userId, and lets
// callers invalidate (evict) a user's entry, e.g. after a KB reconfigure.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[int64]T
	closers map[int64]func(T)
}

// New creates an empty Cache. The closer a GetOrCreate factory returns, if
// non-nil, runs when that value is invalidated (e.g. to Stop a per-user
// aggregator goroutine).
func New[T any]() *Cache[T] {
	return &Cache[T]{
		entries: make(map[int64]T),
		closers: make(map[int64]func(T)),
	}
}

// GetOrCreate returns the cached value for userID, creating it via factory
// on first access. factory runs at most once per userID between
// invalidations — concurrent callers for the same new userID block on the
// same creation rather than racing two factories.
func (c *Cache[T]) GetOrCreate(userID int64, factory func() (T, func(T))) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries[userID]; ok {
		return v
	}
	v, onEvict := factory()
	c.entries[userID] = v
	if onEvict != nil {
		c.closers[userID] = onEvict
	}
	return v
}

// Get returns a user's cached value without creating one.
func (c *Cache[T]) Get(userID int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[userID]
	return v, ok
}

// Invalidate evicts userID's cached value, running its registered closer
// (if any) outside the lock so a slow Stop() cannot block other users.
func (c *Cache[T]) Invalidate(userID int64) {
	c.mu.Lock()
	v, ok := c.entries[userID]
	closer := c.closers[userID]
	delete(c.entries, userID)
	delete(c.closers, userID)
	c.mu.Unlock()

	if ok && closer != nil {
		closer(v)
	}
}

// Len reports the number of cached entries, mainly for diagnostics/tests.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
