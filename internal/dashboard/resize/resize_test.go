package resize

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type mutexLoop struct{ mu sync.Mutex }

func (l *mutexLoop) Do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

func TestResize_BurstRedrawsOnceWithLastSize(t *testing.T) {
	fc := clockwork.NewFakeClock()
	loop := &mutexLoop{}
	var redraws []Size
	c := New(fc, loop, 100*time.Millisecond, Size{960, 500}, Size{960, 500}, func(chart, _ Size) {
		redraws = append(redraws, chart)
	})

	loop.Do(func() {
		c.Resize(Size{800, 400}, Size{})
		c.Resize(Size{700, 400}, Size{})
		c.Resize(Size{640, 360}, Size{})
	})
	fc.Advance(150 * time.Millisecond)

	require.Eventually(t, func() bool {
		n := 0
		loop.Do(func() { n = len(redraws) })
		return n == 1
	}, time.Second, 5*time.Millisecond)

	loop.Do(func() {
		require.Equal(t, Size{640, 360}, redraws[0])
		require.Equal(t, Size{960, 500}, c.Map(), "zero size keeps the previous map size")
	})
}

func TestResize_UnchangedSizeIsIgnored(t *testing.T) {
	loop := &mutexLoop{}
	c := New(clockwork.NewFakeClock(), loop, 0, Size{960, 500}, Size{600, 300}, func(Size, Size) {
		t.Errorf("unexpected redraw")
	})
	loop.Do(func() {
		c.Resize(Size{960, 500}, Size{600, 300})
		require.False(t, c.Pending())
	})
}
