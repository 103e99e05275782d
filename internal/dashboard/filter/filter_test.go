package filter

import (
	"net/url"
	"testing"
	"time"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

func TestSetYear_ClearsZoomAndRefetchesEverything(t *testing.T) {
	s := New(2024, "TMAX")
	s.BrushLine(model.Date(2024, 3, 1), model.Date(2024, 3, 10))
	if _, ok := s.LineZoom(); !ok {
		t.Fatalf("expected line zoom after brush")
	}

	e := s.SetYear(2023)
	if _, ok := s.LineZoom(); ok {
		t.Fatalf("year change must clear line zoom")
	}
	want := Elements | Locations | Stations | Series | Regions | Stats
	if !e.Refetch.Has(want) {
		t.Fatalf("refetch=%s want at least %s", e.Refetch, want)
	}
	if !e.Debounce {
		t.Fatalf("selector changes are debounced")
	}
}

func TestTransitionTable_Refetch(t *testing.T) {
	cases := []struct {
		name string
		run  func(*State) Effect
		want Request
	}{
		{"element", func(s *State) Effect { return s.SetElement("prcp") }, Cascade | Unit},
		{"country", func(s *State) Effect { return s.SetCountry("Canada") }, Cascade},
		{"state", func(s *State) Effect { return s.SetRegion("Ontario") }, Stations | Series | Regions | Stats},
		{"station", func(s *State) Effect { return s.SetStation("CA001") }, Series | Regions | Stats},
		{"brush line", func(s *State) Effect {
			return s.BrushLine(model.Date(2024, 1, 5), model.Date(2024, 1, 9))
		}, 0},
		{"map country", func(s *State) Effect { return s.ClickCountry("Canada") }, Cascade},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(2024, "TMAX")
			e := tc.run(&s)
			if e.Refetch != tc.want {
				t.Fatalf("refetch=%s want %s", e.Refetch, tc.want)
			}
		})
	}
}

func TestSelectorNoChange_IsNoop(t *testing.T) {
	s := New(2024, "TMAX")
	if e := s.SetYear(2024); e.Changed() {
		t.Fatalf("same year should not require work: %+v", e)
	}
	if e := s.SetElement("tmax"); e.Changed() {
		t.Fatalf("same element (case-insensitive) should not require work: %+v", e)
	}
}

func TestHeatmapBrush_DerivesRange(t *testing.T) {
	s := New(2024, "TMAX")
	s.SetChartType(Heatmap)

	e := s.BrushHeatmap(HeatmapZoom{StartDay: 20, EndDay: 10, StartMonth: 8, EndMonth: 6})
	if e.Refetch != Regions|Stats {
		t.Fatalf("heatmap brush refetch=%s want regions|stats", e.Refetch)
	}
	z, ok := s.HeatmapZoom()
	if !ok {
		t.Fatalf("expected heatmap zoom")
	}
	if z != (HeatmapZoom{StartDay: 10, EndDay: 20, StartMonth: 6, EndMonth: 8}) {
		t.Fatalf("zoom not normalized: %+v", z)
	}
	r, ok := s.ServerDateRange()
	if !ok {
		t.Fatalf("expected server date range")
	}
	if got := model.FormatDate(r.Start); got != "2024-06-10" {
		t.Fatalf("start=%s", got)
	}
	if got := model.FormatDate(r.End); got != "2024-08-20" {
		t.Fatalf("end=%s", got)
	}

	// the range follows the year; it is never stored
	s.Year = 2023
	r, _ = s.HeatmapDateRange()
	if r.Start.Year() != 2023 {
		t.Fatalf("derived range must follow year, got %s", model.FormatDate(r.Start))
	}
}

func TestHeatmapZoom_DayClampedToMonthLength(t *testing.T) {
	z := HeatmapZoom{StartDay: 1, EndDay: 31, StartMonth: 2, EndMonth: 2}
	r := z.DateRange(2023)
	if got := model.FormatDate(r.End); got != "2023-02-28" {
		t.Fatalf("end=%s want 2023-02-28", got)
	}
	r = z.DateRange(2024)
	if got := model.FormatDate(r.End); got != "2024-02-29" {
		t.Fatalf("leap end=%s want 2024-02-29", got)
	}
}

func TestAtMostOneZoom(t *testing.T) {
	s := New(2024, "TMAX")
	s.BrushLine(model.Date(2024, 2, 1), model.Date(2024, 2, 5))

	// brushing the heatmap while on the line chart is ignored
	if e := s.BrushHeatmap(HeatmapZoom{1, 2, 1, 2}); e.Changed() {
		t.Fatalf("heatmap brush on line chart must be ignored")
	}

	e := s.SetChartType(Heatmap)
	if e.Refetch != 0 {
		t.Fatalf("dropping a line zoom needs no refetch, got %s", e.Refetch)
	}
	if _, ok := s.LineZoom(); ok {
		t.Fatalf("line zoom survived chart change")
	}

	s.BrushHeatmap(HeatmapZoom{1, 2, 1, 2})
	e = s.SetChartType(Bar)
	if e.Refetch != Regions|Stats {
		t.Fatalf("dropping a heatmap zoom must refetch regions|stats, got %s", e.Refetch)
	}
	if _, ok := s.HeatmapZoom(); ok {
		t.Fatalf("heatmap zoom survived chart change")
	}
	if _, ok := s.ServerDateRange(); ok {
		t.Fatalf("server date range survived chart change")
	}
}

func TestMapClicks(t *testing.T) {
	s := New(2024, "TMAX")
	s.SetCountry("Canada")
	s.SetRegion("Ontario")

	s.ClickStation("CA006158355")
	if s.Station != "CA006158355" || s.Country != "Canada" || s.Region != "Ontario" {
		t.Fatalf("station click must not touch geography: %+v", s)
	}
	s.ClickStation("CA006158355")
	if s.Station != "" {
		t.Fatalf("second click on same station should clear it")
	}

	s.ClickCountry("Canada")
	if s.Country != "" || s.Region != "" {
		t.Fatalf("clicking selected country toggles it off and clears state: %+v", s)
	}
	s.ClickCountry("Mexico")
	if s.Country != "Mexico" {
		t.Fatalf("country=%q", s.Country)
	}
	if e := s.ResetGeography(); e.Refetch != Cascade {
		t.Fatalf("reset refetch=%s", e.Refetch)
	}
	if s.Country != "" || s.Region != "" {
		t.Fatalf("reset must clear country and state")
	}
}

func TestURLRoundTrip(t *testing.T) {
	line := New(2024, "TMAX")
	line.SetCountry("Canada")
	line.SetRegion("Ontario")
	line.SetStation("CA006158355")
	line.BrushLine(model.Date(2024, 5, 1), model.Date(2024, 5, 31))

	heat := New(2024, "PRCP")
	heat.SetChartType(Heatmap)
	heat.BrushHeatmap(HeatmapZoom{StartDay: 10, EndDay: 31, StartMonth: 2, EndMonth: 3})

	bar := New(1999, "SNOW")
	bar.SetChartType(Bar)

	for _, s := range []State{line, heat, bar, New(2024, "TMIN")} {
		q := Encode(s).Encode()
		v, err := url.ParseQuery(q)
		if err != nil {
			t.Fatalf("parse %q: %v", q, err)
		}
		got, err := Decode(v)
		if err != nil {
			t.Fatalf("decode %q: %v", q, err)
		}
		if !got.Equal(s) {
			t.Fatalf("round trip mismatch for %q:\n got=%+v\nwant=%+v", q, got, s)
		}
	}
}

func TestBrushLine_SnapsToWholeDaysAndRoundTrips(t *testing.T) {
	s := New(2024, "TMAX")
	start := time.Date(2024, 3, 5, 13, 22, 11, 0, time.UTC)
	end := time.Date(2024, 3, 20, 9, 3, 0, 0, time.UTC)
	if e := s.BrushLine(start, end); e.Redraw != ChartView {
		t.Fatalf("brush effect=%+v", e)
	}
	z, ok := s.LineZoom()
	if !ok {
		t.Fatalf("expected line zoom")
	}
	if !z.Start.Equal(model.Date(2024, 3, 6)) || !z.End.Equal(model.Date(2024, 3, 20)) {
		t.Fatalf("zoom=%s..%s want 2024-03-06..2024-03-20", z.Start, z.End)
	}

	got, err := Decode(Encode(s))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(s) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, s)
	}

	inside := New(2024, "TMAX")
	e := inside.BrushLine(time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC), time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC))
	if e.Changed() {
		t.Fatalf("brush inside one day must not zoom: %+v", e)
	}
	if _, ok := inside.LineZoom(); ok {
		t.Fatalf("unexpected zoom for sub-day brush")
	}
}

func TestEncode_HeatmapDatesAndCells(t *testing.T) {
	s := New(2024, "TMAX")
	s.SetChartType(Heatmap)
	s.BrushHeatmap(HeatmapZoom{StartDay: 10, EndDay: 20, StartMonth: 6, EndMonth: 8})

	v := Encode(s)
	if v.Get(ParamStartDate) != "2024-06-10" || v.Get(ParamEndDate) != "2024-08-20" {
		t.Fatalf("dates=%s..%s", v.Get(ParamStartDate), v.Get(ParamEndDate))
	}
	if v.Get(ParamCells) != "d10-20m6-8" {
		t.Fatalf("cells=%q", v.Get(ParamCells))
	}
}

func TestDecode_HeatmapFromDatesOnly(t *testing.T) {
	v := url.Values{}
	v.Set(ParamYear, "2024")
	v.Set(ParamElement, "tmax")
	v.Set(ParamChartType, "heatmap")
	v.Set(ParamStartDate, "2024-06-10")
	v.Set(ParamEndDate, "2024-08-20")

	s, err := Decode(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	z, ok := s.HeatmapZoom()
	if !ok || z != (HeatmapZoom{10, 20, 6, 8}) {
		t.Fatalf("zoom=%+v ok=%v", z, ok)
	}
	if s.Element != "TMAX" {
		t.Fatalf("element=%q", s.Element)
	}
}

func TestDecode_InvalidValuesAreSkipped(t *testing.T) {
	v := url.Values{}
	v.Set(ParamYear, "abc")
	v.Set(ParamElement, "TMAX")
	v.Set(ParamChartType, "pie")
	v.Set(ParamStartDate, "2024-13-40")
	v.Set(ParamEndDate, "2024-01-02")

	s, err := Decode(v)
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if s.Year != 0 || s.Chart != Line || s.Element != "TMAX" {
		t.Fatalf("unexpected state %+v", s)
	}
	if _, ok := s.LineZoom(); ok {
		t.Fatalf("invalid dates must not produce a zoom")
	}
}

func TestKey_StableAcrossCopies(t *testing.T) {
	s := New(2024, "TMAX")
	s.BrushLine(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	c := s
	c.ResetLineZoom()
	if s.Key() == c.Key() {
		t.Fatalf("copy shares zoom with original")
	}
}
