// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for date filters (startDate/endDate).
const DateLayout = "2006-01-02"

// ArchiveDateLayout is how the archive encodes observation dates.
const ArchiveDateLayout = "20060102"

type Element struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

type Station struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Country   string   `json:"country"`
	State     string   `json:"state"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Value     *float64 `json:"value,omitempty"`
}

// HasLocation reports whether the station can be placed on a map.
func (s Station) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

type Locations struct {
	Countries []string `json:"countries"`
	States    []string `json:"states"`
}

// RawObservation is one row of a fetched time series.
type RawObservation struct {
	Date         time.Time `json:"date"`
	Value        float64   `json:"value"`
	StationCount int       `json:"station_count"`
	Month        int       `json:"month"`
	Day          int       `json:"day"`
	Year         int       `json:"year"`
}

type RegionKind string

const (
	RegionCountry RegionKind = "country"
	RegionState   RegionKind = "state"
)

type RegionAggregate struct {
	Kind          RegionKind `json:"kind"`
	Name          string     `json:"name"`
	ParentCountry string     `json:"parent_country,omitempty"`
	MeanValue     float64    `json:"mean_value"`
	SampleCount   int        `json:"sample_count"`
}

type CountryStat struct {
	Country        string  `json:"country"`
	MaxValue       float64 `json:"max_value"`
	MaxStationID   string  `json:"max_station_id"`
	MaxStationName string  `json:"max_station_name"`
	MaxDate        string  `json:"max_date"`
	MinValue       float64 `json:"min_value"`
	MinStationID   string  `json:"min_station_id"`
	MinStationName string  `json:"min_station_name"`
	MinDate        string  `json:"min_date"`
}

// DataSource is the out-of-band indicator on series responses.
type DataSource int

const (
	SourceUnknown DataSource = iota
	SourceCache
	SourceMaterialized
)

func (d DataSource) String() string {
	switch d {
	case SourceCache:
		return "cache"
	case SourceMaterialized:
		return "materialized"
	default:
		return "unknown"
	}
}

// ParseDataSource maps the upstream header value onto a DataSource.
func ParseDataSource(s string) DataSource {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cache", "cached", "hit":
		return SourceCache
	case "materialized", "materializing", "cold":
		return SourceMaterialized
	default:
		return SourceUnknown
	}
}

// ParseArchiveDate converts YYYYMMDD (or YYYY-MM-DD) into a UTC date.
func ParseArchiveDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layout := ArchiveDateLayout
	if strings.Contains(s, "-") {
		layout = DateLayout
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DaysIn returns the number of days of month m in year y.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Date builds a UTC midnight date.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsPrecipitationLike reports elements drawn with a sequential palette.
func IsPrecipitationLike(element string) bool {
	switch strings.ToUpper(element) {
	case "PRCP", "SNOW", "SNWD", "WESD", "WESF", "EVAP", "MDPR":
		return true
	}
	return false
}

// ValueLabel is the axis/tooltip label for an element.
func ValueLabel(element string) string {
	switch strings.ToUpper(element) {
	case "TMAX", "TMIN", "TAVG", "TOBS":
		return "Temperature (°C)"
	case "PRCP":
		return "Precipitation (mm)"
	case "SNOW", "SNWD":
		return "Snow (mm)"
	case "AWND":
		return "Wind Speed (m/s)"
	default:
		return "Value"
	}
}

// ConvertValue turns archive tenths into display units.
func ConvertValue(value float64, element string) float64 {
	switch strings.ToUpper(element) {
	case "TMAX", "TMIN", "TAVG", "TOBS", "PRCP":
		return value / 10.0
	}
	return value
}
