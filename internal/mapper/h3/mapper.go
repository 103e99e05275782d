package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/mapper"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

var _ mapper.Interface = (*Mapper)(nil)

type acc struct {
	cell  h3.Cell
	sum   float64
	n     int
	count int
	ids   []string
}

// Bin groups located stations by their H3 cell at res. Stations without
// coordinates are skipped. Bins are sorted by cell id for determinism.
func (m *Mapper) Bin(stations []model.Station, res int) ([]mapper.Hexbin, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	byCell := make(map[h3.Cell]*acc)
	for _, s := range stations {
		if !s.HasLocation() {
			continue
		}
		c, err := h3.LatLngToCell(h3.LatLng{Lat: *s.Latitude, Lng: *s.Longitude}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for station %s: %w", s.ID, err)
		}
		a := byCell[c]
		if a == nil {
			a = &acc{cell: c}
			byCell[c] = a
		}
		a.count++
		a.ids = append(a.ids, s.ID)
		if s.Value != nil {
			a.sum += *s.Value
			a.n++
		}
	}
	return finish(byCell)
}

// BinAtMost bins at res and coarsens one resolution at a time until at most
// maxBins cells remain. It returns the resolution used.
func (m *Mapper) BinAtMost(stations []model.Station, res, maxBins int) ([]mapper.Hexbin, int, error) {
	bins, err := m.Bin(stations, res)
	if err != nil {
		return nil, res, err
	}
	for maxBins > 0 && len(bins) > maxBins && res > 0 {
		res--
		if bins, err = m.coarsen(bins, res); err != nil {
			return nil, res, err
		}
	}
	return bins, res, nil
}

// coarsen merges bins into their parents at res, weighting means by the
// number of valued stations.
func (m *Mapper) coarsen(bins []mapper.Hexbin, res int) ([]mapper.Hexbin, error) {
	byCell := make(map[h3.Cell]*acc, len(bins))
	for _, b := range bins {
		pc, err := parentOf(b.Cell, res)
		if err != nil {
			return nil, err
		}
		a := byCell[pc]
		if a == nil {
			a = &acc{cell: pc}
			byCell[pc] = a
		}
		a.count += b.Count
		a.n += b.Valued
		a.sum += b.Mean * float64(b.Valued)
		a.ids = append(a.ids, b.StationIDs...)
	}
	return finish(byCell)
}

func finish(byCell map[h3.Cell]*acc) ([]mapper.Hexbin, error) {
	out := make([]mapper.Hexbin, 0, len(byCell))
	for _, a := range byCell {
		center, err := h3.CellToLatLng(a.cell)
		if err != nil {
			return nil, fmt.Errorf("h3 center: %w", err)
		}
		boundary, err := h3.CellToBoundary(a.cell)
		if err != nil {
			return nil, fmt.Errorf("h3 boundary: %w", err)
		}
		ring := make([]mapper.LngLat, 0, len(boundary))
		for _, ll := range boundary {
			ring = append(ring, mapper.LngLat{ll.Lng, ll.Lat})
		}
		b := mapper.Hexbin{
			Cell:       a.cell.String(),
			Center:     mapper.LngLat{center.Lng, center.Lat},
			Boundary:   ring,
			Count:      a.count,
			Valued:     a.n,
			StationIDs: a.ids,
		}
		if a.n > 0 {
			b.Mean = a.sum / float64(a.n)
		}
		sort.Strings(b.StationIDs)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
