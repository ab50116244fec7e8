// Package ratelimit implements C7, a per-user sliding-window request
// limiter with an in-memory default and an optional Redis-backed
// implementation for multi-instance deployments, grounded on the
// redis.Client pipeline/TTL idiom from uncord-server's gateway.SessionStore.
package ratelimit

import "context"

// Limiter decides whether a user may make another request right now.
type Limiter interface {
	// Allow reports whether userID may proceed, and if not, the duration
	// the caller should wait before retrying.
	Allow(ctx context.Context, userID int64) (allowed bool, retryAfter int64, err error)
}

// Config controls window size and request budget, shared by both backends.
type Config struct {
	MaxRequests   int
	WindowSeconds int
}
