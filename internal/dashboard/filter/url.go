package filter

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

// URL query parameter names.
const (
	ParamYear      = "year"
	ParamElement   = "element"
	ParamChartType = "chartType"
	ParamCountry   = "country"
	ParamState     = "state"
	ParamStation   = "station"
	ParamStartDate = "startDate"
	ParamEndDate   = "endDate"
	ParamCells     = "cells"
)

// Encode reflects the state as URL query parameters. Empty optional fields are
// omitted. A heatmap zoom is written both as its date range and as the
// compact cell selection so it survives a reload unchanged.
func Encode(s State) url.Values {
	v := url.Values{}
	if s.Year > 0 {
		v.Set(ParamYear, strconv.Itoa(s.Year))
	}
	if s.Element != "" {
		v.Set(ParamElement, s.Element)
	}
	if s.Chart != "" {
		v.Set(ParamChartType, string(s.Chart))
	}
	if s.Country != "" {
		v.Set(ParamCountry, s.Country)
	}
	if s.Region != "" {
		v.Set(ParamState, s.Region)
	}
	if s.Station != "" {
		v.Set(ParamStation, s.Station)
	}
	if r, ok := s.LineZoom(); ok {
		v.Set(ParamStartDate, model.FormatDate(r.Start))
		v.Set(ParamEndDate, model.FormatDate(r.End))
	}
	if z, ok := s.HeatmapZoom(); ok {
		r := z.DateRange(s.Year)
		v.Set(ParamStartDate, model.FormatDate(r.Start))
		v.Set(ParamEndDate, model.FormatDate(r.End))
		v.Set(ParamCells, z.String())
	}
	return v
}

// Decode seeds a state from URL query parameters. Unparseable values are
// skipped and reported together in the returned error; the state is usable
// either way.
func Decode(v url.Values) (State, error) {
	var errs []error
	s := State{Chart: Line}

	if raw := strings.TrimSpace(v.Get(ParamYear)); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s %q", ParamYear, raw))
		} else {
			s.Year = y
		}
	}
	s.Element = strings.ToUpper(strings.TrimSpace(v.Get(ParamElement)))
	if raw := v.Get(ParamChartType); raw != "" {
		c, err := ParseChartType(raw)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.Chart = c
		}
	}
	s.Country = strings.TrimSpace(v.Get(ParamCountry))
	s.Region = strings.TrimSpace(v.Get(ParamState))
	s.Station = strings.TrimSpace(v.Get(ParamStation))

	switch s.Chart {
	case Heatmap:
		z, ok, err := decodeCells(v, s.Year)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			s.zoom = zoom{chart: Heatmap, heatmap: z}
		}
	case Line:
		r, ok, err := decodeRange(v)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			s.zoom = zoom{chart: Line, line: r}
		}
	}
	return s, errors.Join(errs...)
}

func decodeRange(v url.Values) (DateRange, bool, error) {
	rawStart, rawEnd := v.Get(ParamStartDate), v.Get(ParamEndDate)
	if rawStart == "" || rawEnd == "" {
		return DateRange{}, false, nil
	}
	start, err := model.ParseArchiveDate(rawStart)
	if err != nil {
		return DateRange{}, false, fmt.Errorf("invalid %s: %w", ParamStartDate, err)
	}
	end, err := model.ParseArchiveDate(rawEnd)
	if err != nil {
		return DateRange{}, false, fmt.Errorf("invalid %s: %w", ParamEndDate, err)
	}
	if end.Before(start) {
		start, end = end, start
	}
	return DateRange{Start: start, End: end}, true, nil
}

// decodeCells prefers the lossless cell selection and falls back to the date
// range, which only loses information when a day bound was clamped to a
// shorter month.
func decodeCells(v url.Values, year int) (HeatmapZoom, bool, error) {
	if raw := v.Get(ParamCells); raw != "" {
		z, err := ParseHeatmapZoom(raw)
		if err != nil {
			return HeatmapZoom{}, false, err
		}
		return z, true, nil
	}
	r, ok, err := decodeRange(v)
	if !ok || err != nil {
		return HeatmapZoom{}, false, err
	}
	if year > 0 && (r.Start.Year() != year || r.End.Year() != year) {
		return HeatmapZoom{}, false, fmt.Errorf("heatmap range %s..%s outside year %d",
			model.FormatDate(r.Start), model.FormatDate(r.End), year)
	}
	z := HeatmapZoom{
		StartDay:   r.Start.Day(),
		EndDay:     r.End.Day(),
		StartMonth: int(r.Start.Month()),
		EndMonth:   int(r.End.Month()),
	}
	return z.Normalize(), true, nil
}
