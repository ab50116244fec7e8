package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vellumhq/vellum/internal/core"
)

func TestPublishDeliversSyncBeforeReturn(t *testing.T) {
	bus := New(2)
	defer bus.Stop()

	var delivered int32
	bus.Subscribe(core.EventFileCreated, func(core.KBChangeEvent) {
		atomic.AddInt32(&delivered, 1)
	})

	bus.Publish(core.KBChangeEvent{Type: core.EventFileCreated})

	if atomic.LoadInt32(&delivered) != 1 {
		t.Fatalf("expected sync handler to run before Publish returns, got %d", delivered)
	}
}

func TestPublishDeliversToAllSubscribersExactlyOnce(t *testing.T) {
	bus := New(2)
	defer bus.Stop()

	var mu sync.Mutex
	counts := map[string]int{}
	for _, name := range []string{"a", "b", "c"} {
		name := name
		bus.Subscribe(core.EventGitCommit, func(core.KBChangeEvent) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})
	}

	bus.Publish(core.KBChangeEvent{Type: core.EventGitCommit})

	mu.Lock()
	defer mu.Unlock()
	for name, c := range counts {
		if c != 1 {
			t.Fatalf("subscriber %s delivered %d times, want 1", name, c)
		}
	}
}

func TestHandlerPanicDoesNotBreakOtherSubscribers(t *testing.T) {
	bus := New(2)
	defer bus.Stop()

	var ran int32
	bus.Subscribe(core.EventFileModified, func(core.KBChangeEvent) {
		panic("boom")
	})
	bus.Subscribe(core.EventFileModified, func(core.KBChangeEvent) {
		atomic.AddInt32(&ran, 1)
	})

	bus.Publish(core.KBChangeEvent{Type: core.EventFileModified})

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("second subscriber should still run after first panics")
	}
}

func TestAsyncHandlerRunsOnPool(t *testing.T) {
	bus := New(2)
	defer bus.Stop()

	done := make(chan struct{})
	bus.SubscribeAsync(core.EventBatchChanges, func(core.KBChangeEvent) {
		close(done)
	})

	bus.Publish(core.KBChangeEvent{Type: core.EventBatchChanges})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler did not run in time")
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	bus := New(1)
	defer bus.Stop()

	var calls int32
	unsub := bus.Subscribe(core.EventFileDeleted, func(core.KBChangeEvent) {
		atomic.AddInt32(&calls, 1)
	})
	unsub()

	bus.Publish(core.KBChangeEvent{Type: core.EventFileDeleted})

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected unsubscribed handler not to run, got %d calls", calls)
	}
}
