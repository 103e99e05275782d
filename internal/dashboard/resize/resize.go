// Package resize coalesces viewport changes into a single redraw from cached
// data. It never triggers a fetch.
package resize

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/fetch"
)

// DefaultWindow is the trailing-edge debounce for viewport changes.
const DefaultWindow = 200 * time.Millisecond

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s Size) valid() bool { return s.Width > 0 && s.Height > 0 }

// Coordinator holds the current chart and map sizes. Resize must be called on
// the loop; redraw runs on the loop.
type Coordinator struct {
	deb    *fetch.Debouncer
	redraw func(chart, geo Size)
	chart  Size
	geo    Size
}

func New(clock clockwork.Clock, loop fetch.Loop, window time.Duration, chart, geo Size, redraw func(chart, geo Size)) *Coordinator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coordinator{
		deb:    fetch.NewDebouncer(clock, loop, window),
		redraw: redraw,
		chart:  chart,
		geo:    geo,
	}
}

// Resize records new container sizes; a zero size keeps the previous one.
// The redraw happens once the window passes without another change.
func (c *Coordinator) Resize(chart, geo Size) {
	if !chart.valid() {
		chart = c.chart
	}
	if !geo.valid() {
		geo = c.geo
	}
	if chart == c.chart && geo == c.geo && !c.deb.Pending() {
		return
	}
	c.chart, c.geo = chart, geo
	c.deb.Trigger(func() { c.redraw(c.chart, c.geo) })
}

func (c *Coordinator) Chart() Size { return c.chart }

func (c *Coordinator) Map() Size { return c.geo }

func (c *Coordinator) Pending() bool { return c.deb.Pending() }

// Cancel drops a pending redraw.
func (c *Coordinator) Cancel() { c.deb.Cancel() }
