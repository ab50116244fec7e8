package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements the same sliding-window-log semantics as
// MemoryLimiter but shares state across instances via a Redis sorted set
// per user, keyed by request timestamp. Grounded on the pipelined
// Set+Expire idiom in uncord-server's gateway.SessionStore.
type RedisLimiter struct {
	rdb *redis.Client
	cfg Config
	now func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, cfg Config) *RedisLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 20
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	return &RedisLimiter{rdb: rdb, cfg: cfg, now: time.Now}
}

func rateLimitKey(userID int64) string {
	return "vellum:ratelimit:" + strconv.FormatInt(userID, 10)
}

func (l *RedisLimiter) Allow(ctx context.Context, userID int64) (bool, int64, error) {
	key := rateLimitKey(userID)
	now := l.now()
	window := time.Duration(l.cfg.WindowSeconds) * time.Second
	windowStart := now.Add(-window)

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	card := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("ratelimit: inspect window: %w", err)
	}

	if card.Val() >= int64(l.cfg.MaxRequests) {
		retryAfter := int64(l.cfg.WindowSeconds)
		if vals := oldest.Val(); len(vals) > 0 {
			oldestAt := time.Unix(0, int64(vals[0].Score))
			retryAfter = int64(oldestAt.Add(window).Sub(now).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return false, retryAfter, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	addPipe := l.rdb.TxPipeline()
	addPipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	addPipe.Expire(ctx, key, window)
	if _, err := addPipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("ratelimit: record request: %w", err)
	}

	return true, 0, nil
}
