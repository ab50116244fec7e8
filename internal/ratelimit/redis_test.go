package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLimiterAllowsUpToMax(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Config{MaxRequests: 2, WindowSeconds: 60})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx, 7)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	allowed, retryAfter, err := l.Allow(ctx, 7)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("3rd request should be blocked")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter = %d, want > 0", retryAfter)
	}
}

func TestRedisLimiterIsolatesUsers(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Config{MaxRequests: 1, WindowSeconds: 60})
	ctx := context.Background()

	if allowed, _, _ := l.Allow(ctx, 1); !allowed {
		t.Fatal("user 1 first request should be allowed")
	}
	if allowed, _, _ := l.Allow(ctx, 2); !allowed {
		t.Fatal("user 2 should not share user 1's window")
	}
}
