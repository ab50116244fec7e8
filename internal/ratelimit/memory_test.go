package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterAllowsUpToMax(t *testing.T) {
	t.Parallel()
	l := NewMemoryLimiter(Config{MaxRequests: 3, WindowSeconds: 60})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, 1)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	allowed, retryAfter, err := l.Allow(ctx, 1)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("4th request should be blocked")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter = %d, want > 0", retryAfter)
	}
}

func TestMemoryLimiterIsolatesUsers(t *testing.T) {
	t.Parallel()
	l := NewMemoryLimiter(Config{MaxRequests: 1, WindowSeconds: 60})
	ctx := context.Background()

	if allowed, _, _ := l.Allow(ctx, 1); !allowed {
		t.Fatal("user 1 first request should be allowed")
	}
	if allowed, _, _ := l.Allow(ctx, 2); !allowed {
		t.Fatal("user 2 should not be affected by user 1's usage")
	}
	if allowed, _, _ := l.Allow(ctx, 1); allowed {
		t.Fatal("user 1 second request should be blocked")
	}
}

func TestMemoryLimiterWindowSlides(t *testing.T) {
	t.Parallel()
	l := NewMemoryLimiter(Config{MaxRequests: 1, WindowSeconds: 1})
	start := time.Now()
	l.now = func() time.Time { return start }
	ctx := context.Background()

	if allowed, _, _ := l.Allow(ctx, 1); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _, _ := l.Allow(ctx, 1); allowed {
		t.Fatal("second request within window should be blocked")
	}

	l.now = func() time.Time { return start.Add(2 * time.Second) }
	if allowed, _, _ := l.Allow(ctx, 1); !allowed {
		t.Fatal("request after window elapses should be allowed")
	}
}
