package batch

import (
	"context"
	"sync"
	"time"
)

// DebounceState tracks where the debouncer is in its cycle.
type DebounceState int32

const (
	StateIdle DebounceState = iota
	StateScheduled
	StateRunning
)

func (s DebounceState) String() string {
	switch s {
	case StateScheduled:
		return "SCHEDULED"
	case StateRunning:
		return "RUNNING"
	default:
		return "IDLE"
	}
}

// Debouncer coalesces recompute triggers: a burst of edits leads to at most
// one recompute per quiescence window. A trigger arriving while a recompute
// is scheduled reschedules it; one arriving while a recompute is running
// cancels that run's context and schedules a fresh run. The callback must
// honor its context before publishing results so a stale recompute never
// overwrites a newer one.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	fn     func(ctx context.Context)
	timer  *time.Timer
	state  DebounceState
	gen    uint64
	cancel context.CancelFunc
}

// NewDebouncer creates a debouncer that calls fn after window of quiescence
// following a Trigger.
func NewDebouncer(window time.Duration, fn func(ctx context.Context)) *Debouncer {
	if window <= 0 {
		window = 400 * time.Millisecond
	}
	return &Debouncer{window: window, fn: fn}
}

// Trigger records an edit. Any pending or running recompute is superseded.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.state = StateScheduled
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

// fire runs the callback unless a newer trigger superseded this schedule
// between timer expiry and acquisition of the lock.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.state = StateRunning
	d.mu.Unlock()

	d.fn(ctx)

	d.mu.Lock()
	if gen == d.gen {
		d.state = StateIdle
		d.cancel = nil
	}
	d.mu.Unlock()
	cancel()
}

// State returns the current debouncer state.
func (d *Debouncer) State() DebounceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stop cancels any pending or running recompute.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.state = StateIdle
}
