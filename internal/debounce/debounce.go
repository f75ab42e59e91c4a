// Package debounce coalesces rapid repeated triggers of the same
// resolution action (scanner chatter, held keys, double clicks) into a
// single trailing-edge dispatch.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs a function once the configured window has elapsed with
// no further triggers. Each Trigger resets the window, so only the
// settled final input fires.
type Debouncer struct {
	mu     sync.Mutex
	timer  *time.Timer
	window time.Duration
}

// New constructs a Debouncer. A non-positive window makes every Trigger
// fire immediately, which keeps tests and Enter-key paths deterministic.
func New(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Trigger schedules fn after the window, cancelling any pending call.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.window <= 0 {
		go fn()
		return
	}
	d.timer = time.AfterFunc(d.window, fn)
}

// Flush cancels any pending call and runs fn immediately, for explicit
// actions (Enter, lookup button) that must not wait out the window.
func (d *Debouncer) Flush(fn func()) {
	d.Cancel()
	fn()
}

// Cancel drops any pending call without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
