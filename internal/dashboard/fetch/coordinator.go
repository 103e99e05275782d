// Package fetch sequences the dashboard's asynchronous data requests. Every
// request kind carries a generation; a completion is applied only if no newer
// request of the same kind was issued after it. Completions and timer fires
// are delivered through a Loop so they are serialized with the owner's state.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/filter"
)

// Loop runs fn serialized with every other fn given to it.
type Loop interface {
	Do(fn func())
}

// Progress is the loading indicator state.
type Progress struct {
	Visible  bool   `json:"visible"`
	Blocking bool   `json:"blocking"`
	Message  string `json:"message,omitempty"`
}

const (
	MsgLoading        = "Loading data..."
	MsgMaterializing  = "Preparing this dataset for the first time. This can take up to a minute; later requests will be fast."
	DefaultDelay      = 300 * time.Millisecond
	outcomeOK         = "ok"
	outcomeError      = "error"
	outcomeStale      = "stale"
	outcomeCanceled   = "canceled"
	outcomeSuperseded = "superseded"
)

// Notify is handed to a request so it can report the out-of-band data source
// indicator as soon as response headers arrive.
type Notify func(model.DataSource)

type Options struct {
	Clock      clockwork.Clock
	Loop       Loop
	Delay      time.Duration
	Logger     *slog.Logger
	OnProgress func(Progress)
}

type Coordinator struct {
	clock      clockwork.Clock
	loop       Loop
	delay      time.Duration
	log        *slog.Logger
	onProgress func(Progress)

	base   context.Context
	stop   context.CancelFunc
	flight inflight
	gens   map[filter.Request]uint64
	cancel map[filter.Request]context.CancelFunc
	// pending holds the kinds whose current generation has not settled.
	pending  map[filter.Request]struct{}
	busy     uint64
	timer    clockwork.Timer
	progress Progress
}

func NewCoordinator(o Options) *Coordinator {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OnProgress == nil {
		o.OnProgress = func(Progress) {}
	}
	base, stop := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Coordinator{
		flight:     inflight{idle: idle},
		clock:      o.Clock,
		loop:       o.Loop,
		delay:      o.Delay,
		log:        o.Logger,
		onProgress: o.OnProgress,
		base:       base,
		stop:       stop,
		gens:       make(map[filter.Request]uint64),
		cancel:     make(map[filter.Request]context.CancelFunc),
		pending:    make(map[filter.Request]struct{}),
	}
}

// Generation returns the current generation of kind.
func (c *Coordinator) Generation(kind filter.Request) uint64 { return c.gens[kind] }

// Pending reports whether kind has an unsettled request.
func (c *Coordinator) Pending(kind filter.Request) bool {
	_, ok := c.pending[kind]
	return ok
}

func (c *Coordinator) Busy() bool { return len(c.pending) > 0 }

func (c *Coordinator) Progress() Progress { return c.progress }

// Skip records a request that was not issued because inputs were missing.
func (c *Coordinator) Skip(kind filter.Request) {
	observability.IncFetchSkipped(kind.String())
}

// Invalidate supersedes any in-flight request of kind without issuing a new
// one. Its result, if it still arrives, is discarded.
func (c *Coordinator) Invalidate(kind filter.Request) {
	if _, ok := c.pending[kind]; !ok {
		return
	}
	c.gens[kind]++
	if cancel := c.cancel[kind]; cancel != nil {
		cancel()
		delete(c.cancel, kind)
	}
	delete(c.pending, kind)
	observability.ObserveFetch(kind.String(), outcomeSuperseded, -1)
	c.maybeSettle()
}

// Issue starts fn for kind under a new generation, cancelling the previous
// request of the same kind. apply runs on the loop only if the generation is
// still current when fn returns. Issue must be called on the loop.
func Issue[T any](c *Coordinator, kind filter.Request, fn func(ctx context.Context, notify Notify) (T, error), apply func(T, error)) uint64 {
	c.gens[kind]++
	gen := c.gens[kind]
	if prev := c.cancel[kind]; prev != nil {
		prev()
	}
	ctx, cancel := context.WithCancel(c.base)
	c.cancel[kind] = cancel
	if len(c.pending) == 0 {
		c.armDelay()
	}
	c.pending[kind] = struct{}{}

	started := c.clock.Now()
	notify := func(src model.DataSource) {
		c.loop.Do(func() { c.signal(kind, gen, src) })
	}
	c.flight.begin()
	go func() {
		defer c.flight.end()
		res, err := fn(ctx, notify)
		c.loop.Do(func() {
			elapsed := c.clock.Since(started).Seconds()
			if c.gens[kind] != gen {
				outcome := outcomeStale
				if errors.Is(err, context.Canceled) {
					outcome = outcomeCanceled
				}
				observability.ObserveFetch(kind.String(), outcome, elapsed)
				c.log.Debug("discarding superseded response", "kind", kind.String(), "gen", gen, "current", c.gens[kind])
				return
			}
			cancel()
			delete(c.cancel, kind)
			delete(c.pending, kind)
			if err != nil {
				observability.ObserveFetch(kind.String(), outcomeError, elapsed)
				c.log.Warn("fetch failed", "kind", kind.String(), "gen", gen, "error", err)
			} else {
				observability.ObserveFetch(kind.String(), outcomeOK, elapsed)
			}
			apply(res, err)
			c.maybeSettle()
		})
	}()
	return gen
}

// signal shows the blocking indicator when the service reports that it is
// materializing the dataset for the first time.
func (c *Coordinator) signal(kind filter.Request, gen uint64, src model.DataSource) {
	if c.gens[kind] != gen || src != model.SourceMaterialized {
		return
	}
	if _, ok := c.pending[kind]; !ok {
		return
	}
	c.setProgress(Progress{Visible: true, Blocking: true, Message: MsgMaterializing})
}

func (c *Coordinator) armDelay() {
	c.busy++
	busy := c.busy
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(c.delay, func() {
		c.loop.Do(func() {
			if c.busy != busy || len(c.pending) == 0 || c.progress.Visible {
				return
			}
			c.setProgress(Progress{Visible: true, Message: MsgLoading})
		})
	})
}

// maybeSettle dismisses every indicator once nothing is pending.
func (c *Coordinator) maybeSettle() {
	if len(c.pending) > 0 {
		return
	}
	c.busy++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.progress.Visible {
		c.setProgress(Progress{})
	}
}

func (c *Coordinator) setProgress(p Progress) {
	c.progress = p
	c.onProgress(p)
}

// inflight counts request goroutines. idle is closed whenever the count is
// zero; begin replaces it when the first request of a new burst starts.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) begin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

func (f *inflight) done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle
}

// Wait blocks until every request goroutine has delivered its completion.
// Completions that issue follow-up requests keep it blocked until those
// settle too. It must not be called on the loop, but may run concurrently
// with Issue.
func (c *Coordinator) Wait() { <-c.flight.done() }

// Close cancels every in-flight request; none of their results is applied.
func (c *Coordinator) Close() {
	for k := range c.pending {
		c.gens[k]++
	}
	c.pending = make(map[filter.Request]struct{})
	c.stop()
	c.maybeSettle()
}
