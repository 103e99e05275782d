package filter

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

// Request is a bit set of data requests a transition invalidates.
type Request uint16

const (
	Elements Request = 1 << iota
	Locations
	Stations
	Series
	Regions
	Stats
	Unit
)

const (
	// Cascade is everything below the element list.
	Cascade = Locations | Stations | Series | Regions | Stats
	// DateSensitive requests carry startDate/endDate.
	DateSensitive = Regions | Stats
	AllRequests   = Elements | Cascade | Unit
)

// Has reports whether every bit of o is set in r.
func (r Request) Has(o Request) bool { return r&o == o && o != 0 }

// Kinds lists the individual requests in r in issue order.
func (r Request) Kinds() []Request {
	var out []Request
	for k := Elements; k <= Unit; k <<= 1 {
		if r&k != 0 {
			out = append(out, k)
		}
	}
	return out
}

func (r Request) String() string {
	switch r {
	case Elements:
		return "elements"
	case Locations:
		return "locations"
	case Stations:
		return "stations"
	case Series:
		return "series"
	case Regions:
		return "regions"
	case Stats:
		return "stats"
	case Unit:
		return "unit"
	case 0:
		return "none"
	}
	parts := make([]string, 0, 7)
	for _, k := range r.Kinds() {
		parts = append(parts, k.String())
	}
	return strings.Join(parts, "|")
}

// View is a bit set of views that must redraw.
type View uint8

const (
	ChartView View = 1 << iota
	MapView
	TableView
)

// Effect is what a transition requires from the rest of the dashboard.
type Effect struct {
	Trigger  string
	Refetch  Request
	Redraw   View
	Debounce bool
}

// Changed reports whether the transition requires any work.
func (e Effect) Changed() bool { return e.Refetch != 0 || e.Redraw != 0 }

func selector(trigger string, r Request) Effect {
	return Effect{Trigger: trigger, Refetch: r, Debounce: true}
}

func (s *State) clearZoom() (hadHeatmap bool) {
	hadHeatmap = s.zoom.chart == Heatmap
	s.zoom = zoom{}
	return hadHeatmap
}

// SetYear changes the year and drops any zoom.
func (s *State) SetYear(year int) Effect {
	if year == s.Year {
		return Effect{Trigger: "year"}
	}
	s.Year = year
	s.clearZoom()
	return selector("year", Elements|Cascade|Unit)
}

func (s *State) SetElement(element string) Effect {
	element = strings.ToUpper(strings.TrimSpace(element))
	if element == s.Element {
		return Effect{Trigger: "element"}
	}
	s.Element = element
	return selector("element", Cascade|Unit)
}

// SetChartType switches the chart. The zoom belongs to the chart it was made
// on, so it is dropped; dropping a heatmap zoom also removes the date filter
// from regions and stats.
func (s *State) SetChartType(c ChartType) Effect {
	if c == s.Chart {
		return Effect{Trigger: "chart_type"}
	}
	s.Chart = c
	e := Effect{Trigger: "chart_type", Redraw: ChartView}
	if s.clearZoom() {
		e.Refetch = DateSensitive
	}
	return e
}

// SetCountry changes the country from the selector. The state list belongs to
// the previous country so the state is cleared; the station is kept and
// re-validated once the station list arrives.
func (s *State) SetCountry(country string) Effect {
	country = strings.TrimSpace(country)
	if country == s.Country {
		return Effect{Trigger: "country"}
	}
	s.Country = country
	s.Region = ""
	return selector("country", Cascade)
}

func (s *State) SetRegion(region string) Effect {
	region = strings.TrimSpace(region)
	if region == s.Region {
		return Effect{Trigger: "state"}
	}
	s.Region = region
	return selector("state", Stations|Series|Regions|Stats)
}

func (s *State) SetStation(station string) Effect {
	station = strings.TrimSpace(station)
	if station == s.Station {
		return Effect{Trigger: "station"}
	}
	s.Station = station
	return selector("station", Series|Regions|Stats)
}

// BrushLine zooms the line chart. Only meaningful on the line chart.
func (s *State) BrushLine(start, end time.Time) Effect {
	if s.Chart != Line {
		return Effect{Trigger: "brush_line"}
	}
	if end.Before(start) {
		start, end = end, start
	}
	// Series points sit on midnights and the URL keeps whole days, so the
	// range is snapped inward to the days it fully covers.
	start, end = ceilDay(start), floorDay(end)
	if end.Before(start) {
		return Effect{Trigger: "brush_line"}
	}
	s.zoom = zoom{chart: Line, line: DateRange{Start: start, End: end}}
	return Effect{Trigger: "brush_line", Redraw: ChartView}
}

func floorDay(t time.Time) time.Time {
	t = t.UTC()
	return model.Date(t.Year(), t.Month(), t.Day())
}

func ceilDay(t time.Time) time.Time {
	d := floorDay(t)
	if d.Before(t) {
		return d.AddDate(0, 0, 1)
	}
	return d
}

func (s *State) ResetLineZoom() Effect {
	if _, ok := s.LineZoom(); !ok {
		return Effect{Trigger: "reset_line_zoom"}
	}
	s.zoom = zoom{}
	return Effect{Trigger: "reset_line_zoom", Redraw: ChartView}
}

// BrushHeatmap selects a month x day rectangle on the heatmap.
func (s *State) BrushHeatmap(z HeatmapZoom) Effect {
	if s.Chart != Heatmap {
		return Effect{Trigger: "brush_heatmap"}
	}
	s.zoom = zoom{chart: Heatmap, heatmap: z.Normalize()}
	return Effect{Trigger: "brush_heatmap", Refetch: DateSensitive, Redraw: ChartView}
}

func (s *State) ResetHeatmapZoom() Effect {
	if _, ok := s.HeatmapZoom(); !ok {
		return Effect{Trigger: "reset_heatmap_zoom"}
	}
	s.zoom = zoom{}
	return Effect{Trigger: "reset_heatmap_zoom", Refetch: DateSensitive, Redraw: ChartView}
}

// ClickCountry toggles the country from the map and clears the state.
func (s *State) ClickCountry(country string) Effect {
	country = strings.TrimSpace(country)
	if strings.EqualFold(country, s.Country) {
		s.Country = ""
	} else {
		s.Country = country
	}
	s.Region = ""
	return Effect{Trigger: "map_country", Refetch: Cascade}
}

// ClickRegion toggles the state/province from the map.
func (s *State) ClickRegion(region string) Effect {
	region = strings.TrimSpace(region)
	if strings.EqualFold(region, s.Region) {
		s.Region = ""
	} else {
		s.Region = region
	}
	return Effect{Trigger: "map_state", Refetch: Cascade}
}

// ClickStation toggles the station from a map point. Country and state are
// left untouched.
func (s *State) ClickStation(id string) Effect {
	id = strings.TrimSpace(id)
	if id == s.Station {
		s.Station = ""
	} else {
		s.Station = id
	}
	return Effect{Trigger: "map_station", Refetch: Series | Regions | Stats}
}

// ResetGeography clears country and state together.
func (s *State) ResetGeography() Effect {
	if s.Country == "" && s.Region == "" {
		return Effect{Trigger: "map_reset"}
	}
	s.Country = ""
	s.Region = ""
	return Effect{Trigger: "map_reset", Refetch: Cascade}
}

// DropStation clears a station that no longer exists under the current
// filters.
func (s *State) DropStation() Effect {
	if s.Station == "" {
		return Effect{Trigger: "drop_station"}
	}
	s.Station = ""
	return Effect{Trigger: "drop_station", Refetch: Series | Regions | Stats}
}

// ReplaceElement swaps in a valid element after the element list changed.
func (s *State) ReplaceElement(element string) Effect {
	e := s.SetElement(element)
	e.Trigger = "element_fallback"
	e.Debounce = false
	return e
}
