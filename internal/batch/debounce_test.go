package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var runs int64
	d := NewDebouncer(50*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	})
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)

	if got := atomic.LoadInt64(&runs); got != 1 {
		t.Errorf("a burst of triggers should run once, ran %d times", got)
	}
	if state := d.State(); state != StateIdle {
		t.Errorf("expected IDLE after the run, got %s", state)
	}
}

func TestDebouncerStateTransitions(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	d := NewDebouncer(20*time.Millisecond, func(ctx context.Context) {
		close(started)
		<-release
	})
	defer d.Stop()

	if d.State() != StateIdle {
		t.Fatalf("expected IDLE initially, got %s", d.State())
	}

	d.Trigger()
	if d.State() != StateScheduled {
		t.Errorf("expected SCHEDULED after Trigger, got %s", d.State())
	}

	<-started
	if d.State() != StateRunning {
		t.Errorf("expected RUNNING while the callback executes, got %s", d.State())
	}

	close(release)
	waitForState(t, d, StateIdle)
}

func TestTriggerDuringRunCancelsAndReschedules(t *testing.T) {
	var (
		mu        sync.Mutex
		cancelled []bool
	)
	started := make(chan struct{}, 2)

	d := NewDebouncer(20*time.Millisecond, func(ctx context.Context) {
		started <- struct{}{}
		// Simulate a slow recompute that checks its context before
		// publishing.
		select {
		case <-ctx.Done():
			mu.Lock()
			cancelled = append(cancelled, true)
			mu.Unlock()
		case <-time.After(150 * time.Millisecond):
			mu.Lock()
			cancelled = append(cancelled, false)
			mu.Unlock()
		}
	})
	defer d.Stop()

	d.Trigger()
	<-started

	// Retrigger while the first run is in flight: its context must be
	// cancelled and a fresh run scheduled.
	d.Trigger()
	<-started

	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(cancelled) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(cancelled))
	}
	if !cancelled[0] {
		t.Error("the superseded run's context should be cancelled")
	}
	if cancelled[1] {
		t.Error("the fresh run should complete uncancelled")
	}
}

func TestStopPreventsPendingRun(t *testing.T) {
	var runs int64
	d := NewDebouncer(30*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	})

	d.Trigger()
	d.Stop()

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt64(&runs); got != 0 {
		t.Errorf("Stop before the window elapsed should prevent the run, ran %d times", got)
	}
	if d.State() != StateIdle {
		t.Errorf("expected IDLE after Stop, got %s", d.State())
	}
}

func TestDefaultWindow(t *testing.T) {
	d := NewDebouncer(0, func(ctx context.Context) {})
	defer d.Stop()
	if d.window != 400*time.Millisecond {
		t.Errorf("expected the default 400ms window, got %v", d.window)
	}
}

func waitForState(t *testing.T, d *Debouncer, want DebounceState) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, still %s", want, d.State())
}
