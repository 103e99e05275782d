// Package mapper bins station points into hexagonal cells for dense map
// overlays.
package mapper

import (
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

// LngLat is a [lon, lat] pair in degrees.
type LngLat [2]float64

// Hexbin is one occupied cell. Mean covers only stations that carry a value;
// Valued counts them.
type Hexbin struct {
	Cell       string   `json:"cell"`
	Center     LngLat   `json:"center"`
	Boundary   []LngLat `json:"boundary"`
	Mean       float64  `json:"mean"`
	Count      int      `json:"count"`
	Valued     int      `json:"valued"`
	StationIDs []string `json:"station_ids"`
}

type Interface interface {
	Bin(stations []model.Station, res int) ([]Hexbin, error)
	BinAtMost(stations []model.Station, res, maxBins int) ([]Hexbin, int, error)
}
