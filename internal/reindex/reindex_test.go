package reindex

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/eventbus"
)

type fakeTrigger struct {
	calls int32
}

func (f *fakeTrigger) ReindexVector(ctx context.Context, kbID string, force bool) (core.ReindexJob, error) {
	atomic.AddInt32(&f.calls, 1)
	return core.ReindexJob{KBID: kbID, Status: core.ReindexCompleted}, nil
}

func (f *fakeTrigger) GetReindexStatus(ctx context.Context, kbID string) (core.ReindexJob, error) {
	return core.ReindexJob{KBID: kbID, Status: core.ReindexCompleted}, nil
}

func TestRapidEventsCoalesceIntoOneDispatch(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Stop()

	trigger := &fakeTrigger{}
	m := New(trigger, bus, time.Hour)

	for i := 0; i < 5; i++ {
		bus.Publish(core.KBChangeEvent{Type: core.EventFileModified, KBID: "kb1"})
		time.Sleep(50 * time.Millisecond)
	}

	time.Sleep(debounceWindow + 500*time.Millisecond)

	if got := atomic.LoadInt32(&trigger.calls); got != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", got)
	}
}

func TestManualTriggerSkipsWindow(t *testing.T) {
	bus := eventbus.New(2)
	defer bus.Stop()

	trigger := &fakeTrigger{}
	m := New(trigger, bus, time.Hour)

	m.TriggerReindex("kb2")
	time.Sleep(200 * time.Millisecond)

	if got := atomic.LoadInt32(&trigger.calls); got != 1 {
		t.Fatalf("expected immediate dispatch, got %d calls", got)
	}
}
