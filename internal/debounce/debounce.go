// Package debounce coalesces bursts of calls into a single deferred action.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs its action once a quiet period of delay has passed since the last
// Schedule. Runs never overlap: if the timer fires while a run is in flight, the
// debouncer re-arms when that run returns.
type Debouncer struct {
	delay  time.Duration
	action func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	running bool
	dirty   bool
	stopped bool
	idle    *sync.Cond
}

func New(delay time.Duration, action func()) *Debouncer {
	d := &Debouncer{delay: delay, action: action}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Schedule (re)starts the quiet period.
func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.armLocked()
}

// Cancel drops a pending run. A run already in flight is not interrupted.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.dirty = false
}

// Discard drops a pending run and waits for a run in flight to return.
func (d *Debouncer) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		d.stopTimerLocked()
		d.dirty = false
		if !d.running {
			return
		}
		d.idle.Wait()
	}
}

// Pending reports whether a run is scheduled or in flight.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil || d.running || d.dirty
}

// Flush runs a pending action now and waits for it, and for any in-flight run, to finish.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	hadTimer := false
	for {
		if d.stopTimerLocked() {
			hadTimer = true
		}
		if !d.running {
			break
		}
		d.idle.Wait()
	}
	if !hadTimer && !d.dirty {
		d.mu.Unlock()
		return
	}
	d.dirty = false
	d.running = true
	d.mu.Unlock()

	d.run()
}

// Stop flushes and ignores every later Schedule.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.Flush()
}

func (d *Debouncer) armLocked() {
	d.stopTimerLocked()
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) stopTimerLocked() bool {
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		// superseded by a later Schedule, Cancel or Flush
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.gen++
	if d.running {
		d.dirty = true
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.run()
}

func (d *Debouncer) run() {
	d.action()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.idle.Broadcast()
	if d.dirty && !d.stopped && d.timer == nil {
		d.dirty = false
		d.armLocked()
	}
}
