package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a sliding-window-log limiter: each user's recent request
// timestamps are kept in a slice and pruned to the current window on
// every call. Suitable for single-instance deployments (RateLimitConfig
// with rate_limit.backend=memory).
type MemoryLimiter struct {
	cfg Config

	mu      sync.Mutex
	windows map[int64][]time.Time

	now func() time.Time
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 20
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	return &MemoryLimiter{
		cfg:     cfg,
		windows: make(map[int64][]time.Time),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID int64) (bool, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-time.Duration(l.cfg.WindowSeconds) * time.Second)

	hits := l.windows[userID]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.cfg.MaxRequests {
		oldest := kept[0]
		retryAfter := int64(oldest.Add(time.Duration(l.cfg.WindowSeconds) * time.Second).Sub(now).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		l.windows[userID] = kept
		return false, retryAfter, nil
	}

	kept = append(kept, now)
	l.windows[userID] = kept
	return true, 0, nil
}

// Reset clears a user's window, e.g. after an admin override.
func (l *MemoryLimiter) Reset(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, userID)
}
