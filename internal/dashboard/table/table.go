// Package table is the sortable country statistics view. It owns only its sort
// state; rows are replaced wholesale on every stats fetch and the active sort
// is re-applied to them.
package table

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

type Column string

const (
	ColCountry        Column = "country"
	ColMaxValue       Column = "max_value"
	ColMaxStationID   Column = "max_station_id"
	ColMaxStationName Column = "max_station_name"
	ColMaxDate        Column = "max_date"
	ColMinValue       Column = "min_value"
	ColMinStationID   Column = "min_station_id"
	ColMinStationName Column = "min_station_name"
	ColMinDate        Column = "min_date"
)

// Columns in display order.
var Columns = []Column{
	ColCountry,
	ColMaxValue, ColMaxStationID, ColMaxStationName, ColMaxDate,
	ColMinValue, ColMinStationID, ColMinStationName, ColMinDate,
}

// ParseColumn validates a column name.
func ParseColumn(s string) (Column, error) {
	for _, c := range Columns {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown column %q", s)
}

type Direction string

const (
	None Direction = "none"
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is the active sort. A zero Sort means original order.
type Sort struct {
	Column    Column    `json:"column,omitempty"`
	Direction Direction `json:"direction"`
}

// View holds the rows as received and the sort applied to them.
type View struct {
	rows   []model.CountryStat
	sorted []model.CountryStat
	sort   Sort
	unit   string
	err    error
}

func New() *View {
	return &View{sort: Sort{Direction: None}}
}

// SetRows replaces the rows and re-applies the current sort.
func (v *View) SetRows(rows []model.CountryStat) {
	v.rows = append([]model.CountryStat(nil), rows...)
	v.err = nil
	v.apply()
}

// SetError clears the rows and records a load failure.
func (v *View) SetError(err error) {
	v.rows = nil
	v.sorted = nil
	v.err = err
}

func (v *View) SetUnit(unit string) { v.unit = unit }

// Click advances the sort cycle for col: none, desc, asc, none. Clicking a
// different column starts it at desc.
func (v *View) Click(col Column) Sort {
	switch {
	case v.sort.Column != col || v.sort.Direction == None:
		v.sort = Sort{Column: col, Direction: Desc}
	case v.sort.Direction == Desc:
		v.sort.Direction = Asc
	default:
		v.sort = Sort{Direction: None}
	}
	v.apply()
	return v.sort
}

func (v *View) Sort() Sort { return v.sort }

// Rows returns the rows in display order.
func (v *View) Rows() []model.CountryStat {
	return append([]model.CountryStat(nil), v.sorted...)
}

func (v *View) Err() error { return v.err }

func (v *View) apply() {
	v.sorted = append(v.sorted[:0:0], v.rows...)
	if v.sort.Direction == None || v.sort.Column == "" {
		return
	}
	less := lessFor(v.sort.Column)
	desc := v.sort.Direction == Desc
	sort.SliceStable(v.sorted, func(i, j int) bool {
		if desc {
			return less(v.sorted[j], v.sorted[i])
		}
		return less(v.sorted[i], v.sorted[j])
	})
}

func lessFor(col Column) func(a, b model.CountryStat) bool {
	str := func(f func(model.CountryStat) string) func(a, b model.CountryStat) bool {
		return func(a, b model.CountryStat) bool { return strings.ToLower(f(a)) < strings.ToLower(f(b)) }
	}
	switch col {
	case ColMaxValue:
		return func(a, b model.CountryStat) bool { return a.MaxValue < b.MaxValue }
	case ColMinValue:
		return func(a, b model.CountryStat) bool { return a.MinValue < b.MinValue }
	case ColMaxStationID:
		return str(func(c model.CountryStat) string { return c.MaxStationID })
	case ColMaxStationName:
		return str(func(c model.CountryStat) string { return c.MaxStationName })
	case ColMaxDate:
		return str(func(c model.CountryStat) string { return c.MaxDate })
	case ColMinStationID:
		return str(func(c model.CountryStat) string { return c.MinStationID })
	case ColMinStationName:
		return str(func(c model.CountryStat) string { return c.MinStationName })
	case ColMinDate:
		return str(func(c model.CountryStat) string { return c.MinDate })
	default:
		return str(func(c model.CountryStat) string { return c.Country })
	}
}

// Header is one column heading with its sort indicator.
type Header struct {
	Column    Column    `json:"column"`
	Title     string    `json:"title"`
	Direction Direction `json:"direction"`
}

// Headers returns the column headings. Value columns carry the unit.
func (v *View) Headers() []Header {
	titles := map[Column]string{
		ColCountry:        "Country",
		ColMaxValue:       "Max Value",
		ColMaxStationID:   "Max Station ID",
		ColMaxStationName: "Max Station",
		ColMaxDate:        "Max Date",
		ColMinValue:       "Min Value",
		ColMinStationID:   "Min Station ID",
		ColMinStationName: "Min Station",
		ColMinDate:        "Min Date",
	}
	out := make([]Header, 0, len(Columns))
	for _, c := range Columns {
		h := Header{Column: c, Title: titles[c], Direction: None}
		if (c == ColMaxValue || c == ColMinValue) && v.unit != "" {
			h.Title = fmt.Sprintf("%s (%s)", h.Title, v.unit)
		}
		if v.sort.Column == c {
			h.Direction = v.sort.Direction
		}
		out = append(out, h)
	}
	return out
}

// Snapshot is the serializable table state.
type Snapshot struct {
	Visible bool                `json:"visible"`
	Headers []Header            `json:"headers"`
	Rows    []model.CountryStat `json:"rows"`
	Sort    Sort                `json:"sort"`
	Error   string              `json:"error,omitempty"`
}

func (v *View) Snapshot(visible bool) Snapshot {
	s := Snapshot{Visible: visible, Headers: v.Headers(), Rows: v.Rows(), Sort: v.sort}
	if v.err != nil {
		s.Error = fmt.Sprintf("Failed to load country statistics: %v", v.err)
	}
	return s
}
