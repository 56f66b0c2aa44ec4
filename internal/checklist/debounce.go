package checklist

import (
	"sync"
	"time"
)

// DefaultSaveDelay is the quiet period before a remote save is sent.
const DefaultSaveDelay = time.Second

// Timer is the subset of *time.Timer the store needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so tests can fire the save timer by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// debouncer holds at most one pending call. Every Debounce replaces the
// pending call and restarts the quiet period.
type debouncer struct {
	clock Clock
	delay time.Duration

	mu    sync.Mutex
	timer Timer
	// gen invalidates callbacks whose timer fired while being replaced.
	gen uint64
}

func newDebouncer(clock Clock, delay time.Duration) *debouncer {
	return &debouncer{clock: clock, delay: delay}
}

func (d *debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call and reports whether there was one.
func (d *debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.timer != nil
	if pending {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	return pending
}

func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
