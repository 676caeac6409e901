package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestEveryRunsImmediatelyAndOnInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewScheduler(context.Background(), fc)
	defer s.Stop()

	var runs atomic.Int32
	s.Every("tick", 200*time.Millisecond, func(context.Context) { runs.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	waitFor(t, func() bool { return runs.Load() == 1 })

	fc.Advance(200 * time.Millisecond)
	waitFor(t, func() bool { return runs.Load() == 2 })
}

func TestAfterReplacesPendingTimer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewScheduler(context.Background(), fc)
	defer s.Stop()

	var first, second atomic.Int32
	s.After("dwell", time.Second, func() { first.Add(1) })
	s.After("dwell", time.Second, func() { second.Add(1) })

	fc.Advance(time.Second)
	waitFor(t, func() bool { return second.Load() == 1 })
	if first.Load() != 0 {
		t.Fatalf("expected replaced timer not to fire")
	}
}

func TestStopCancelsEverything(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewScheduler(context.Background(), fc)

	var fired atomic.Int32
	s.After("dwell", time.Second, func() { fired.Add(1) })
	s.Every("sync", time.Second, func(context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("timers never registered: %v", err)
	}

	s.Stop()
	fc.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	if fired.Load() != 0 {
		t.Fatalf("expected no callbacks after stop")
	}
	if s.Context().Err() == nil {
		t.Fatalf("expected scheduler context cancelled")
	}
	// Scheduling after stop is a no-op.
	s.After("late", 0, func() { fired.Add(1) })
	fc.Advance(time.Second)
	if fired.Load() != 0 {
		t.Fatalf("expected late timer ignored")
	}
}

func TestCancelPendingTimer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	s := NewScheduler(context.Background(), fc)
	defer s.Stop()

	var fired atomic.Int32
	s.After("dwell", time.Second, func() { fired.Add(1) })
	if !s.Cancel("dwell") {
		t.Fatalf("expected pending timer to be cancelled")
	}
	if s.Cancel("dwell") {
		t.Fatalf("expected second cancel to report nothing pending")
	}
	fc.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected cancelled timer not to fire")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
