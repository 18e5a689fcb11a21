package pager

import (
	"sync"
	"time"
)

// Debouncer runs only the last function scheduled within its delay
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	gen   uint64
}

// NewDebouncer creates a debouncer with the given settle delay
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule replaces any pending function with fn
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	mine := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}

	// a timer that already fired but lost the race to Stop sees a newer gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := d.gen == mine
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Stop cancels any pending function
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
