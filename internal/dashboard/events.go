package dashboard

import (
	"context"
	"time"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/filter"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/resize"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/table"
)

// actions adapts renderer gestures to transitions. Renderer handlers run with
// the controller lock held, so these methods never lock.
type actions struct{ c *Controller }

func (a actions) BrushLine(start, end time.Time) { a.c.apply(a.c.state.BrushLine(start, end)) }
func (a actions) ResetLineZoom()                 { a.c.apply(a.c.state.ResetLineZoom()) }
func (a actions) ResetHeatmapZoom()              { a.c.apply(a.c.state.ResetHeatmapZoom()) }
func (a actions) ClickCountry(name string)       { a.c.apply(a.c.state.ClickCountry(name)) }
func (a actions) ClickRegion(name string)        { a.c.apply(a.c.state.ClickRegion(name)) }
func (a actions) ClickStation(id string)         { a.c.apply(a.c.state.ClickStation(id)) }
func (a actions) ResetGeography()                { a.c.apply(a.c.state.ResetGeography()) }

func (a actions) BrushHeatmap(z filter.HeatmapZoom) {
	a.c.apply(a.c.state.BrushHeatmap(z))
}

// Selector changes. Each is debounced; the fetch cycle reads the state as it
// is when the window passes.

func (c *Controller) SetYear(year int) {
	c.Do(func() { c.apply(c.state.SetYear(year)) })
}

func (c *Controller) SetElement(element string) {
	c.Do(func() { c.apply(c.state.SetElement(element)) })
}

func (c *Controller) SetCountry(country string) {
	c.Do(func() { c.apply(c.state.SetCountry(country)) })
}

func (c *Controller) SetRegion(region string) {
	c.Do(func() { c.apply(c.state.SetRegion(region)) })
}

func (c *Controller) SetStation(station string) {
	c.Do(func() { c.apply(c.state.SetStation(station)) })
}

func (c *Controller) SetChartType(t filter.ChartType) {
	c.Do(func() { c.apply(c.state.SetChartType(t)) })
}

// Gesture targets a view's scene.
type View string

const (
	ChartView View = "chart"
	MapView   View = "map"
)

func (c *Controller) scene(v View) *scene.Scene {
	switch v {
	case ChartView:
		return c.chartScene
	case MapView:
		return c.mapScene
	}
	return nil
}

// Click delivers a click on mark id of the scene with revision rev. Clicks on
// a scene that has since been redrawn are ignored.
func (c *Controller) Click(v View, rev uint64, id string) bool {
	ok := false
	c.Do(func() {
		s := c.scene(v)
		if s == nil || s.Rev != rev {
			return
		}
		ok = s.Click(id)
	})
	return ok
}

// Brush delivers a brush release on the chart scene with revision rev.
func (c *Controller) Brush(v View, rev uint64, sel scene.Rect) bool {
	ok := false
	c.Do(func() {
		s := c.scene(v)
		if s == nil || s.Rev != rev {
			return
		}
		ok = s.EndBrush(sel)
	})
	return ok
}

// Hover returns the tooltip under p on the current scene of v.
func (c *Controller) Hover(v View, p scene.Point) string {
	var tip string
	c.Do(func() {
		if s := c.scene(v); s != nil {
			tip = s.Hover(p)
		}
	})
	return tip
}

// SortTable cycles the sort of col. Sorting is local.
func (c *Controller) SortTable(col table.Column) table.Sort {
	var s table.Sort
	c.Do(func() {
		s = c.table.Click(col)
		observability.IncTransition("table_sort")
		c.renderTable()
	})
	return s
}

// SetTableVisible shows or hides the statistics table and persists the
// preference. Stats skipped while hidden are fetched when it is shown.
func (c *Controller) SetTableVisible(ctx context.Context, visible bool) {
	changed := false
	c.Do(func() {
		if c.tableVisible == visible {
			return
		}
		changed = true
		c.tableVisible = visible
		observability.IncTransition("table_visibility")
		c.renderTable()
		if visible && c.statsStale {
			c.refetch(filter.Stats)
		}
	})
	if !changed || c.prefs == nil || c.client == "" {
		return
	}
	if err := c.prefs.SetTableVisible(ctx, c.client, visible); err != nil {
		c.log.Warn("persist table preference failed", "err", err)
	}
}

// Resize records new container sizes; chart and map redraw from the caches
// once the resize burst ends.
func (c *Controller) Resize(chartSize, mapSize resize.Size) {
	c.Do(func() { c.resizer.Resize(chartSize, mapSize) })
}
