package fetch

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDebounce is the trailing-edge window for selector changes.
const DefaultDebounce = 150 * time.Millisecond

// Debouncer coalesces bursts of triggers into one call after the window has
// passed without a new trigger. Trigger and Cancel must be called on the loop;
// the callback runs on the loop.
type Debouncer struct {
	clock  clockwork.Clock
	loop   Loop
	window time.Duration
	seq    uint64
	timer  clockwork.Timer
	fn     func()
}

func NewDebouncer(clock clockwork.Clock, loop Loop, window time.Duration) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{clock: clock, loop: loop, window: window}
}

// Trigger (re)starts the window. Only the fn of the last trigger runs.
func (d *Debouncer) Trigger(fn func()) {
	d.seq++
	seq := d.seq
	d.fn = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.window, func() {
		d.loop.Do(func() {
			if d.seq != seq || d.fn == nil {
				return
			}
			fn := d.fn
			d.fn = nil
			d.timer = nil
			fn()
		})
	})
}

// Pending reports whether a call is waiting for the window to pass.
func (d *Debouncer) Pending() bool { return d.fn != nil }

// Flush runs the pending call now.
func (d *Debouncer) Flush() {
	if d.fn == nil {
		return
	}
	fn := d.fn
	d.Cancel()
	fn()
}

// Cancel drops the pending call.
func (d *Debouncer) Cancel() {
	d.seq++
	d.fn = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
