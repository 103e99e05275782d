// Package filter holds the dashboard selection and zoom state together with the
// named transitions that are the only way to change it.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

type ChartType string

const (
	Line    ChartType = "line"
	Bar     ChartType = "bar"
	Heatmap ChartType = "heatmap"
)

// ParseChartType accepts the URL/selector spelling of a chart type.
func ParseChartType(s string) (ChartType, error) {
	switch ChartType(strings.ToLower(strings.TrimSpace(s))) {
	case Line:
		return Line, nil
	case Bar:
		return Bar, nil
	case Heatmap:
		return Heatmap, nil
	default:
		return "", fmt.Errorf("unknown chart type %q", s)
	}
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies in [Start, End].
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// HeatmapZoom is a rectangular selection on the month x day grid.
type HeatmapZoom struct {
	StartDay   int `json:"start_day"`
	EndDay     int `json:"end_day"`
	StartMonth int `json:"start_month"`
	EndMonth   int `json:"end_month"`
}

// Normalize orders the bounds and clamps them to the 12x31 grid.
func (z HeatmapZoom) Normalize() HeatmapZoom {
	if z.StartDay > z.EndDay {
		z.StartDay, z.EndDay = z.EndDay, z.StartDay
	}
	if z.StartMonth > z.EndMonth {
		z.StartMonth, z.EndMonth = z.EndMonth, z.StartMonth
	}
	z.StartDay = clamp(z.StartDay, 1, 31)
	z.EndDay = clamp(z.EndDay, 1, 31)
	z.StartMonth = clamp(z.StartMonth, 1, 12)
	z.EndMonth = clamp(z.EndMonth, 1, 12)
	return z
}

// ContainsCell reports whether (month, day) lies inside the selection.
func (z HeatmapZoom) ContainsCell(month, day int) bool {
	return month >= z.StartMonth && month <= z.EndMonth && day >= z.StartDay && day <= z.EndDay
}

// DateRange derives the absolute date range for the selection in a given year.
// Day bounds past the end of a month are clamped to the month's last day.
func (z HeatmapZoom) DateRange(year int) DateRange {
	startDay := min(z.StartDay, model.DaysIn(year, time.Month(z.StartMonth)))
	endDay := min(z.EndDay, model.DaysIn(year, time.Month(z.EndMonth)))
	return DateRange{
		Start: model.Date(year, time.Month(z.StartMonth), startDay),
		End:   model.Date(year, time.Month(z.EndMonth), endDay),
	}
}

// String is the compact URL form, e.g. d10-20m6-8.
func (z HeatmapZoom) String() string {
	return fmt.Sprintf("d%d-%dm%d-%d", z.StartDay, z.EndDay, z.StartMonth, z.EndMonth)
}

// ParseHeatmapZoom parses the compact form produced by String.
func ParseHeatmapZoom(s string) (HeatmapZoom, error) {
	var z HeatmapZoom
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "d%d-%dm%d-%d", &z.StartDay, &z.EndDay, &z.StartMonth, &z.EndMonth); err != nil {
		return HeatmapZoom{}, fmt.Errorf("parse heatmap cells %q: %w", s, err)
	}
	return z.Normalize(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// zoom is a tagged union: which field is meaningful is fixed by chart.
// The zero value means no zoom.
type zoom struct {
	chart   ChartType
	line    DateRange
	heatmap HeatmapZoom
}

// State is the dashboard selection. Fields are read directly; writes go
// through the transition methods in transitions.go.
type State struct {
	Year    int       `json:"year"`
	Element string    `json:"element"`
	Station string    `json:"station,omitempty"`
	Country string    `json:"country,omitempty"`
	Region  string    `json:"state,omitempty"`
	Chart   ChartType `json:"chart_type"`

	zoom zoom
}

// New returns the initial state for a session.
func New(year int, element string) State {
	return State{Year: year, Element: element, Chart: Line}
}

// Ready reports whether year and element are both set.
func (s State) Ready() bool {
	return s.Year > 0 && strings.TrimSpace(s.Element) != ""
}

// LineZoom returns the active line zoom range.
func (s State) LineZoom() (DateRange, bool) {
	if s.zoom.chart != Line || s.Chart != Line {
		return DateRange{}, false
	}
	return s.zoom.line, true
}

// HeatmapZoom returns the active heatmap selection.
func (s State) HeatmapZoom() (HeatmapZoom, bool) {
	if s.zoom.chart != Heatmap || s.Chart != Heatmap {
		return HeatmapZoom{}, false
	}
	return s.zoom.heatmap, true
}

// HeatmapDateRange is derived from the heatmap selection and the year on
// every call; it is never stored.
func (s State) HeatmapDateRange() (DateRange, bool) {
	z, ok := s.HeatmapZoom()
	if !ok {
		return DateRange{}, false
	}
	return z.DateRange(s.Year), true
}

// ServerDateRange is the date filter sent with region and stats requests.
// Only the heatmap selection narrows them; the line zoom is client-side.
func (s State) ServerDateRange() (DateRange, bool) {
	return s.HeatmapDateRange()
}

// Equal compares two states including zoom.
func (s State) Equal(o State) bool {
	if s.Year != o.Year || s.Element != o.Element || s.Station != o.Station ||
		s.Country != o.Country || s.Region != o.Region || s.Chart != o.Chart {
		return false
	}
	lz1, ok1 := s.LineZoom()
	lz2, ok2 := o.LineZoom()
	if ok1 != ok2 || (ok1 && (!lz1.Start.Equal(lz2.Start) || !lz1.End.Equal(lz2.End))) {
		return false
	}
	hz1, ok1 := s.HeatmapZoom()
	hz2, ok2 := o.HeatmapZoom()
	return ok1 == ok2 && hz1 == hz2
}

// Key is a stable textual identity of the state, used in logs and events.
func (s State) Key() string {
	return Encode(s).Encode()
}
