// Package dashboardtest provides an in-memory query source and a small atlas
// for tests that drive a dashboard controller.
package dashboardtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/executor"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/geomap"
)

const worldJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"United States of America","iso_a3":"USA"},
  "geometry":{"type":"Polygon","coordinates":[[[-125,25],[-67,25],[-67,49],[-125,49],[-125,25]]]}},
 {"type":"Feature","properties":{"name":"Canada","iso_a3":"CAN"},
  "geometry":{"type":"Polygon","coordinates":[[[-141,42],[-52,42],[-52,70],[-141,70],[-141,42]]]}}
]}`

const admin1JSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"Ontario","admin":"Canada"},
  "geometry":{"type":"Polygon","coordinates":[[[-95,42],[-74,42],[-74,56],[-95,56],[-95,42]]]}}
]}`

// Atlas returns a two-country atlas with one Canadian province.
func Atlas() (*geomap.Atlas, error) {
	names, err := geomap.LoadNames()
	if err != nil {
		return nil, err
	}
	world, err := geomap.ParseFeatures(strings.NewReader(worldJSON), false)
	if err != nil {
		return nil, err
	}
	subs, err := geomap.ParseFeatures(strings.NewReader(admin1JSON), true)
	if err != nil {
		return nil, err
	}
	return geomap.NewAtlas(names, world, subs), nil
}

func fp(v float64) *float64 { return &v }

// Source is an executor.Interface answering from fixed data. It records every
// call by operation name: years, elements, locations, stations, series,
// regions, stats, unit.
type Source struct {
	mu       sync.Mutex
	calls    map[string][]executor.Query
	yearsErr error
	stations []model.Station
	source   model.DataSource
}

var _ executor.Interface = (*Source)(nil)

func NewSource() *Source {
	return &Source{
		calls: map[string][]executor.Query{},
		stations: []model.Station{
			{ID: "CA1", Name: "OTTAWA", Country: "CANADA", State: "ONTARIO", Latitude: fp(45.4), Longitude: fp(-75.7), Value: fp(4)},
		},
	}
}

// FailYears makes Years return err.
func (f *Source) FailYears(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.yearsErr = err
}

// ReportSource sets the data source every series call reports.
func (f *Source) ReportSource(src model.DataSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = src
}

func (f *Source) record(op string, q executor.Query) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op] = append(f.calls[op], q)
}

func (f *Source) Calls(op string) []executor.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Query(nil), f.calls[op]...)
}

func (f *Source) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = map[string][]executor.Query{}
}

func (f *Source) Years(ctx context.Context) ([]int, error) {
	f.record("years", executor.Query{})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.yearsErr != nil {
		return nil, f.yearsErr
	}
	return []int{2024, 2023}, nil
}

func (f *Source) Elements(ctx context.Context, year int) ([]model.Element, error) {
	f.record("elements", executor.Query{Year: year})
	return []model.Element{{Code: "PRCP"}, {Code: "TMAX"}, {Code: "TMIN"}}, ctx.Err()
}

func (f *Source) Locations(_ context.Context, q executor.Query) (model.Locations, error) {
	f.record("locations", q)
	return model.Locations{Countries: []string{"CANADA", "UNITED STATES"}, States: []string{"ONTARIO"}}, nil
}

func (f *Source) Stations(_ context.Context, q executor.Query) ([]model.Station, error) {
	f.record("stations", q)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Station(nil), f.stations...), nil
}

// Series returns one observation on the 15th of every month.
func (f *Source) Series(_ context.Context, q executor.Query, notify executor.Notify) ([]model.RawObservation, error) {
	f.record("series", q)
	f.mu.Lock()
	src := f.source
	f.mu.Unlock()
	if notify != nil {
		notify(src)
	}
	rows := make([]model.RawObservation, 0, 12)
	for m := time.January; m <= time.December; m++ {
		rows = append(rows, model.RawObservation{
			Date: model.Date(2024, m, 15), Value: float64(m), StationCount: 2,
			Month: int(m), Day: 15, Year: 2024,
		})
	}
	return rows, nil
}

func (f *Source) Regions(_ context.Context, q executor.Query) ([]model.RegionAggregate, error) {
	f.record("regions", q)
	return []model.RegionAggregate{{Kind: model.RegionCountry, Name: "CANADA", MeanValue: 3, SampleCount: 10}}, nil
}

func (f *Source) CountryStats(_ context.Context, q executor.Query) ([]model.CountryStat, error) {
	f.record("stats", q)
	return []model.CountryStat{{Country: "CANADA", MaxValue: 30}, {Country: "MEXICO", MaxValue: 40}}, nil
}

func (f *Source) Unit(_ context.Context, element string) (string, error) {
	f.record("unit", executor.Query{Element: element})
	return "°C", nil
}
