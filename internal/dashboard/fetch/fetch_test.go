package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/filter"
)

type mutexLoop struct{ mu sync.Mutex }

func (l *mutexLoop) Do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

type progressLog struct {
	mu  sync.Mutex
	all []Progress
}

func (p *progressLog) record(pr Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.all = append(p.all, pr)
}

func (p *progressLog) last() (Progress, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.all) == 0 {
		return Progress{}, 0
	}
	return p.all[len(p.all)-1], len(p.all)
}

func newTestCoordinator(clock clockwork.Clock) (*Coordinator, *mutexLoop, *progressLog) {
	loop := &mutexLoop{}
	pl := &progressLog{}
	c := NewCoordinator(Options{Clock: clock, Loop: loop, Delay: 200 * time.Millisecond, OnProgress: pl.record})
	return c, loop, pl
}

func TestLateResponseOfSupersededRequestIsDiscarded(t *testing.T) {
	c, loop, _ := newTestCoordinator(clockwork.NewFakeClock())
	releaseA := make(chan struct{})
	releaseB := make(chan struct{})
	var applied []string

	request := func(name string, release chan struct{}) func(context.Context, Notify) (string, error) {
		return func(context.Context, Notify) (string, error) {
			<-release
			return name, nil
		}
	}
	apply := func(v string, err error) { applied = append(applied, v) }

	loop.Do(func() {
		Issue(c, filter.Series, request("A", releaseA), apply)
		Issue(c, filter.Series, request("B", releaseB), apply)
	})

	close(releaseB)
	require.Eventually(t, func() bool {
		n := 0
		loop.Do(func() { n = len(applied) })
		return n == 1
	}, time.Second, 5*time.Millisecond)

	close(releaseA)
	c.Wait()

	loop.Do(func() {
		require.Equal(t, []string{"B"}, applied)
		require.False(t, c.Busy())
	})
}

func TestSupersededRequestIsCancelled(t *testing.T) {
	c, loop, _ := newTestCoordinator(clockwork.NewFakeClock())
	var sawCancel bool
	var mu sync.Mutex
	loop.Do(func() {
		Issue(c, filter.Regions, func(ctx context.Context, _ Notify) (int, error) {
			<-ctx.Done()
			mu.Lock()
			sawCancel = true
			mu.Unlock()
			return 0, ctx.Err()
		}, func(int, error) { t.Errorf("cancelled request must not apply") })
		Issue(c, filter.Regions, func(context.Context, Notify) (int, error) { return 1, nil }, func(int, error) {})
	})
	c.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.True(t, sawCancel)
}

func TestIndependentKindsDoNotSupersedeEachOther(t *testing.T) {
	c, loop, _ := newTestCoordinator(clockwork.NewFakeClock())
	got := map[string]bool{}
	loop.Do(func() {
		Issue(c, filter.Series, func(context.Context, Notify) (string, error) { return "series", nil }, func(v string, _ error) { got[v] = true })
		Issue(c, filter.Stats, func(context.Context, Notify) (string, error) { return "stats", nil }, func(v string, _ error) { got[v] = true })
	})
	c.Wait()
	loop.Do(func() {
		require.True(t, got["series"])
		require.True(t, got["stats"])
	})
}

func TestErrorIsAppliedAndSettles(t *testing.T) {
	c, loop, _ := newTestCoordinator(clockwork.NewFakeClock())
	var gotErr error
	loop.Do(func() {
		Issue(c, filter.Stats, func(context.Context, Notify) (int, error) { return 0, errors.New("boom") }, func(_ int, err error) { gotErr = err })
	})
	c.Wait()
	loop.Do(func() {
		require.EqualError(t, gotErr, "boom")
		require.False(t, c.Pending(filter.Stats))
	})
}

func TestWait_CoversFollowUpRequests(t *testing.T) {
	c, loop, _ := newTestCoordinator(clockwork.NewFakeClock())
	release := make(chan struct{})
	var got []string
	loop.Do(func() {
		Issue(c, filter.Elements, func(context.Context, Notify) (string, error) { return "elements", nil }, func(v string, _ error) {
			got = append(got, v)
			Issue(c, filter.Series, func(context.Context, Notify) (string, error) {
				<-release
				return "series", nil
			}, func(v string, _ error) { got = append(got, v) })
		})
	})

	waited := make(chan struct{})
	go func() {
		c.Wait()
		close(waited)
	}()
	require.Eventually(t, func() bool {
		busy := false
		loop.Do(func() { busy = c.Pending(filter.Series) })
		return busy
	}, time.Second, 5*time.Millisecond)
	select {
	case <-waited:
		t.Fatalf("wait returned while the follow-up request was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after the follow-up settled")
	}
	loop.Do(func() { require.Equal(t, []string{"elements", "series"}, got) })
}

func TestWait_ConcurrentWithIssue(t *testing.T) {
	c, loop, _ := newTestCoordinator(clockwork.NewFakeClock())
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.Wait()
			}
		}
	}()

	applied := 0
	for i := 0; i < 200; i++ {
		loop.Do(func() {
			Issue(c, filter.Stats, func(context.Context, Notify) (int, error) { return 1, nil }, func(v int, _ error) { applied += v })
		})
		if i%10 == 0 {
			c.Wait()
		}
	}
	c.Wait()
	close(stop)
	wg.Wait()
	loop.Do(func() {
		require.False(t, c.Busy())
		require.Positive(t, applied)
	})
}

func TestDelayedIndicatorShownOnlyPastThreshold(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c, loop, pl := newTestCoordinator(fc)

	// fast request: settles before the delay
	loop.Do(func() {
		Issue(c, filter.Series, func(context.Context, Notify) (int, error) { return 1, nil }, func(int, error) {})
	})
	c.Wait()
	fc.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	if _, n := pl.last(); n != 0 {
		t.Fatalf("fast request must not show an indicator")
	}

	// slow request
	release := make(chan struct{})
	loop.Do(func() {
		Issue(c, filter.Series, func(context.Context, Notify) (int, error) { <-release; return 1, nil }, func(int, error) {})
	})
	fc.Advance(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		p, _ := pl.last()
		return p.Visible && !p.Blocking && p.Message == MsgLoading
	}, time.Second, 5*time.Millisecond)

	close(release)
	c.Wait()
	p, _ := pl.last()
	require.False(t, p.Visible, "indicator must be dismissed on settle")
}

func TestMaterializingShowsBlockingIndicatorImmediately(t *testing.T) {
	c, loop, pl := newTestCoordinator(clockwork.NewFakeClock())
	release := make(chan struct{})
	loop.Do(func() {
		Issue(c, filter.Series, func(_ context.Context, notify Notify) ([]model.RawObservation, error) {
			notify(model.SourceMaterialized)
			<-release
			return nil, nil
		}, func([]model.RawObservation, error) {})
	})
	require.Eventually(t, func() bool {
		p, _ := pl.last()
		return p.Visible && p.Blocking && p.Message == MsgMaterializing
	}, time.Second, 5*time.Millisecond)

	close(release)
	c.Wait()
	p, _ := pl.last()
	require.False(t, p.Visible)
}

func TestDebouncer_TrailingEdge(t *testing.T) {
	fc := clockwork.NewFakeClock()
	loop := &mutexLoop{}
	d := NewDebouncer(fc, loop, 150*time.Millisecond)

	var mu sync.Mutex
	var calls []int
	record := func(v int) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, v)
		}
	}

	loop.Do(func() {
		d.Trigger(record(1))
		d.Trigger(record(2))
		d.Trigger(record(3))
	})
	fc.Advance(100 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	require.Empty(t, calls)
	mu.Unlock()

	fc.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1 && calls[0] == 3
	}, time.Second, 5*time.Millisecond)

	loop.Do(func() {
		d.Trigger(record(4))
		d.Cancel()
	})
	fc.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{3}, calls)
}

func TestDebouncer_Flush(t *testing.T) {
	loop := &mutexLoop{}
	d := NewDebouncer(clockwork.NewFakeClock(), loop, time.Second)
	ran := 0
	loop.Do(func() {
		d.Trigger(func() { ran++ })
		require.True(t, d.Pending())
		d.Flush()
		require.False(t, d.Pending())
	})
	require.Equal(t, 1, ran)
}
