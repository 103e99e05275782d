// Package geomap renders the choropleth map: the world by country, one country
// by subdivision with its stations, or a single subdivision with its
// stations. All name comparisons go through the boundary/archive name table.
package geomap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/filter"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/palette"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/mapper"
)

var Margins = scene.Margin{Top: 10, Right: 10, Bottom: 10, Left: 10}

const (
	ModeWorld   = "world"
	ModeCountry = "country"
	ModeState   = "state"
)

// Actions receives the transitions the map's gestures request. Names are
// passed in archive spelling.
type Actions interface {
	ClickCountry(name string)
	ClickRegion(name string)
	ClickStation(id string)
	ResetGeography()
}

type Input struct {
	State    filter.State
	Regions  []model.RegionAggregate
	Stations []model.Station
	// Countries lists the archive countries of the selected year.
	Countries []string
	Err       error
	Width     float64
	Height    float64
}

type Options struct {
	// HexbinThreshold is the station count above which stations are binned.
	// Zero disables binning.
	HexbinThreshold int
	HexbinRes       int
	MaxHexbins      int
}

type Renderer struct {
	atlas  *Atlas
	binner mapper.Interface
	opts   Options
	log    *slog.Logger
}

func NewRenderer(atlas *Atlas, binner mapper.Interface, opts Options, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{atlas: atlas, binner: binner, opts: opts, log: log}
}

// shapeMark is a shape waiting for its fill once the colour domain is known.
type shapeMark struct {
	mark  scene.Mark
	value *float64
}

type frame struct {
	s      *scene.Scene
	proj   Projection
	shapes []shapeMark
	points []shapeMark
}

func (f *frame) values() []float64 {
	var out []float64
	for _, group := range [][]shapeMark{f.shapes, f.points} {
		for _, m := range group {
			if m.value != nil {
				out = append(out, *m.value)
			}
		}
	}
	return out
}

func (r *Renderer) Render(in Input, act Actions) *scene.Scene {
	names := r.atlas.Names()
	st := in.State
	var f *frame
	switch {
	case in.Err != nil:
		s := scene.New("map", "error", in.Width, in.Height, Margins)
		s.Message = fmt.Sprintf("Failed to load map data: %v", in.Err)
		s.Add(scene.Mark{ID: "message", Kind: scene.KindText, Layer: scene.LayerControls,
			X: s.PlotWidth() / 2, Y: s.PlotHeight() / 2, Text: s.Message, Anchor: "middle"})
		if st.Country != "" {
			r.addReset(s, act)
		}
		return s.Finalize()
	case st.Country == "":
		f = r.world(in, act, names)
	case st.Region == "":
		f = r.country(in, act, names)
	default:
		f = r.state(in, act, names)
	}

	lo, hi, ok := palette.Extent(f.values())
	colour := palette.ForElement(st.Element, lo, hi)
	for _, group := range [][]shapeMark{f.shapes, f.points} {
		for _, sm := range group {
			m := sm.mark
			switch {
			case sm.value != nil && ok:
				m.Fill = colour.Color(*sm.value)
			case m.Fill == "":
				m.Fill = palette.Neutral
			}
			f.s.Add(m)
		}
	}
	if st.Country != "" {
		r.addReset(f.s, act)
	}
	return f.s.Finalize()
}

func (r *Renderer) addReset(s *scene.Scene, act Actions) {
	s.Add(scene.Mark{
		ID: "reset-filter", Kind: scene.KindRect, Layer: scene.LayerControls, Class: "map-reset",
		X: s.PlotWidth() - 100, Y: 10, W: 90, H: 25, Fill: "#34495e", Text: "Reset filter",
		OnClick: act.ResetGeography,
	})
}

func (r *Renderer) newFrame(in Input, mode string, b Bounds) *frame {
	s := scene.New("map", mode, in.Width, in.Height, Margins)
	return &frame{s: s, proj: Fit(b, s.PlotWidth(), s.PlotHeight(), 4)}
}

func (r *Renderer) world(in Input, act Actions, names *Names) *frame {
	f := r.newFrame(in, ModeWorld, WorldBounds)
	byName := aggregates(in.Regions, model.RegionCountry, names)
	known := make(map[string]bool, len(in.Countries))
	for _, n := range in.Countries {
		known[norm(n)] = true
	}
	label := model.ValueLabel(in.State.Element)
	for _, c := range r.atlas.Countries {
		agg, has := byName[names.Archive(c.Name)]
		archive, ok := countryTarget(c.Name, names, known)
		if has {
			archive, ok = agg.Name, true
		}
		m := f.shape("country-"+idFor(c), "country", c)
		m.Tooltip = regionTooltip(c.Name, label, agg, has)
		if ok {
			m.OnClick = func() { act.ClickCountry(archive) }
		} else {
			r.log.Debug("country without archive name", "boundary", c.Name)
		}
		f.shapes = append(f.shapes, shapeMark{mark: m, value: meanOf(agg, has)})
	}
	return f
}

// countryTarget resolves the archive country a boundary shape selects: a
// name table entry, else an archive country spelled the same.
func countryTarget(boundary string, names *Names, known map[string]bool) (string, bool) {
	if a, ok := names.Lookup(boundary); ok {
		return a, true
	}
	if k := norm(boundary); known[k] {
		return k, true
	}
	return "", false
}

func (r *Renderer) country(in Input, act Actions, names *Names) *frame {
	st := in.State
	subs := r.atlas.SubdivisionsOf(st.Country)
	var b Bounds
	outline, hasOutline := r.atlas.Country(st.Country)
	if hasOutline {
		b = outline.Bounds()
	}
	for _, sub := range subs {
		b = b.Union(sub.Bounds())
	}
	if b.Empty() {
		b = stationBounds(in.Stations)
	}
	f := r.newFrame(in, ModeCountry, b)

	if hasOutline && len(subs) == 0 {
		m := f.shape("outline", "outline", outline)
		m.Layer = scene.LayerAxes
		m.Fill = palette.Neutral
		f.s.Add(m)
	}
	byName := aggregates(in.Regions, model.RegionState, names)
	label := model.ValueLabel(st.Element)
	for _, sub := range subs {
		archive := names.Archive(sub.Name)
		agg, has := byName[archive]
		if has {
			archive = agg.Name
		}
		m := f.shape("state-"+slug(sub.Name), "subdivision", sub)
		m.Tooltip = regionTooltip(sub.Name, label, agg, has)
		m.OnClick = func() { act.ClickRegion(archive) }
		f.shapes = append(f.shapes, shapeMark{mark: m, value: meanOf(agg, has)})
	}
	r.stations(f, in, in.Stations, act)
	return f
}

func (r *Renderer) state(in Input, act Actions, names *Names) *frame {
	st := in.State
	sub, ok := r.atlas.Subdivision(st.Country, st.Region)
	var stations []model.Station
	for _, s := range in.Stations {
		if s.State == "" || names.Same(s.State, st.Region) {
			stations = append(stations, s)
		}
	}
	b := stationBounds(stations)
	if ok {
		b = sub.Bounds()
	}
	f := r.newFrame(in, ModeState, b)
	if ok {
		byName := aggregates(in.Regions, model.RegionState, names)
		agg, has := byName[names.Archive(sub.Name)]
		m := f.shape("state-"+slug(sub.Name), "subdivision", sub)
		m.Tooltip = regionTooltip(sub.Name, model.ValueLabel(st.Element), agg, has)
		m.OnClick = func() { act.ClickRegion(st.Region) }
		f.shapes = append(f.shapes, shapeMark{mark: m, value: meanOf(agg, has)})
	}
	r.stations(f, in, stations, act)
	return f
}

// stations draws one point per located station, or hexbins once the count
// passes the threshold.
func (r *Renderer) stations(f *frame, in Input, stations []model.Station, act Actions) {
	label := model.ValueLabel(in.State.Element)
	located := 0
	for _, s := range stations {
		if s.HasLocation() {
			located++
		}
	}
	if r.binner != nil && r.opts.HexbinThreshold > 0 && located > r.opts.HexbinThreshold {
		bins, res, err := r.binner.BinAtMost(stations, r.opts.HexbinRes, r.opts.MaxHexbins)
		if err == nil {
			f.s.Notes = append(f.s.Notes, fmt.Sprintf("%d stations binned into %d hexagons (H3 res %d)", located, len(bins), res))
			for _, b := range bins {
				f.points = append(f.points, f.hexbin(b, label))
			}
			return
		}
		r.log.Warn("hexbin failed; drawing stations individually", "error", err)
	}
	for _, s := range stations {
		if !s.HasLocation() {
			continue
		}
		x, y := f.proj.Project(*s.Longitude, *s.Latitude)
		id := s.ID
		m := scene.Mark{
			ID: "station-" + id, Kind: scene.KindCircle, Layer: scene.LayerData, Class: "station",
			X: x, Y: y, R: 4, Stroke: "#ffffff", Datum: s,
			Tooltip: stationTooltip(s, label),
			OnClick: func() { act.ClickStation(id) },
		}
		if id == in.State.Station {
			m.R = 6
			m.Stroke = palette.Selected
			m.Class = "station selected"
		}
		f.points = append(f.points, shapeMark{mark: m, value: s.Value})
	}
}

func (f *frame) hexbin(b mapper.Hexbin, label string) shapeMark {
	ring := make([]scene.Point, 0, len(b.Boundary)+1)
	for _, ll := range b.Boundary {
		x, y := f.proj.Project(ll[0], ll[1])
		ring = append(ring, scene.Point{X: x, Y: y})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	m := scene.Mark{
		ID: "hex-" + b.Cell, Kind: scene.KindShape, Layer: scene.LayerData, Class: "hexbin",
		Rings: [][]scene.Point{ring}, Stroke: "#ffffff", Datum: b,
		Tooltip: fmt.Sprintf("%d stations\nMean %s: %s", b.Count, label, valueOrNA(b.Mean, b.Valued > 0)),
	}
	var v *float64
	if b.Valued > 0 {
		mean := b.Mean
		v = &mean
	}
	return shapeMark{mark: m, value: v}
}

func (f *frame) shape(id, class string, ft Feature) scene.Mark {
	var rings [][]scene.Point
	for _, p := range ft.Polygons {
		for _, ring := range p {
			pts := make([]scene.Point, 0, len(ring))
			for _, ll := range ring {
				x, y := f.proj.Project(ll[0], ll[1])
				pts = append(pts, scene.Point{X: x, Y: y})
			}
			rings = append(rings, pts)
		}
	}
	return scene.Mark{ID: id, Kind: scene.KindShape, Layer: scene.LayerData, Class: class, Rings: rings, Stroke: "#ffffff", Text: ft.Name}
}

// aggregates indexes region aggregates of one kind by archive name.
func aggregates(rs []model.RegionAggregate, kind model.RegionKind, names *Names) map[string]model.RegionAggregate {
	out := make(map[string]model.RegionAggregate, len(rs))
	for _, a := range rs {
		if a.Kind == kind {
			out[names.Archive(a.Name)] = a
		}
	}
	return out
}

func meanOf(a model.RegionAggregate, ok bool) *float64 {
	if !ok {
		return nil
	}
	v := a.MeanValue
	return &v
}

func stationBounds(stations []model.Station) Bounds {
	var b Bounds
	for _, s := range stations {
		if s.HasLocation() {
			b = b.Extend(*s.Longitude, *s.Latitude)
		}
	}
	return b
}

func regionTooltip(name, label string, a model.RegionAggregate, ok bool) string {
	if !ok {
		return name + "\nNo data"
	}
	return fmt.Sprintf("%s\nMean %s: %.2f\nSamples: %d", name, label, a.MeanValue, a.SampleCount)
}

func stationTooltip(s model.Station, label string) string {
	var b strings.Builder
	b.WriteString(s.Name)
	if s.Name == "" {
		b.WriteString(s.ID)
	} else {
		fmt.Fprintf(&b, " (%s)", s.ID)
	}
	if s.Value != nil {
		fmt.Fprintf(&b, "\n%s: %.2f", label, *s.Value)
	} else {
		b.WriteString("\nNo data")
	}
	return b.String()
}

func valueOrNA(v float64, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}

func idFor(f Feature) string {
	if f.ISO != "" {
		return f.ISO
	}
	return slug(f.Name)
}

func slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}
