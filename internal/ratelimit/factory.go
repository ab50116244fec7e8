package ratelimit

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// New builds a Limiter from backend name ("memory" or "redis"). A nil rdb
// with backend "redis" is a configuration error — callers dial the client
// themselves so options (TLS, auth) stay out of this package.
func New(backend string, cfg Config, rdb *redis.Client) (Limiter, error) {
	switch backend {
	case "", "memory":
		return NewMemoryLimiter(cfg), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("ratelimit: redis backend requires a client")
		}
		return NewRedisLimiter(rdb, cfg), nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend %q", backend)
	}
}
