// Package debounce coalesces bursts of triggers into a single delayed action.
package debounce

import (
	"sync"
	"time"
)

// Debouncer holds at most one pending action. Scheduling a new action
// replaces the pending one and restarts the delay, so only the last action
// of a burst runs, delay after the last call.
//
// Cancellation is cooperative: an action that has already started is never
// interrupted.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	shutdown bool
}

// New creates an idle debouncer.
func New() *Debouncer {
	return &Debouncer{}
}

// Schedule cancels any pending action and runs action once after delay on a
// background goroutine. It returns false if the debouncer has been shut down.
func (d *Debouncer) Schedule(delay time.Duration, action func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return false
	}
	d.stopLocked()

	gen := d.gen
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		// A timer that fired concurrently with Stop must not run a replaced action.
		if d.shutdown || d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.gen++
		d.mu.Unlock()

		action()
	})
	return true
}

// Pending reports whether an action is scheduled and has not started.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending action, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Shutdown cancels the pending action and refuses further scheduling. It is
// safe to call more than once and does not wait for a running action, so an
// action may shut down its own debouncer.
func (d *Debouncer) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.shutdown = true
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
