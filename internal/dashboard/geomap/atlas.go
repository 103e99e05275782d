package geomap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biter777/countries"
)

// Ring is a closed sequence of [lon, lat] positions.
type Ring [][2]float64

// Polygon is an outer ring followed by holes.
type Polygon []Ring

// Feature is one boundary shape. Country is set on subdivisions and holds
// the boundary name of the parent country.
type Feature struct {
	Name     string    `json:"name"`
	Country  string    `json:"country,omitempty"`
	ISO      string    `json:"iso,omitempty"`
	Polygons []Polygon `json:"-"`
}

// Bounds returns the lon/lat extent of the feature.
func (f Feature) Bounds() (b Bounds) {
	for _, p := range f.Polygons {
		for _, r := range p {
			for _, pt := range r {
				b = b.Extend(pt[0], pt[1])
			}
		}
	}
	return b
}

// Atlas holds the world countries and first-level subdivisions.
type Atlas struct {
	Countries    []Feature
	Subdivisions []Feature
	names        *Names
}

// NewAtlas wraps already-parsed features.
func NewAtlas(names *Names, countries, subdivisions []Feature) *Atlas {
	return &Atlas{Countries: countries, Subdivisions: subdivisions, names: names}
}

// LoadAtlasFiles reads the world file and, when set, the subdivision file.
// An empty world path yields an atlas without shapes.
func LoadAtlasFiles(names *Names, worldPath, admin1Path string) (*Atlas, error) {
	a := &Atlas{names: names}
	if worldPath != "" {
		fs, err := readFeatureFile(worldPath, false)
		if err != nil {
			return nil, err
		}
		a.Countries = fs
	}
	if admin1Path != "" {
		fs, err := readFeatureFile(admin1Path, true)
		if err != nil {
			return nil, err
		}
		a.Subdivisions = fs
	}
	return a, nil
}

func readFeatureFile(path string, admin1 bool) ([]Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	fs, err := ParseFeatures(f, admin1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fs, nil
}

type rawFeature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

// ParseFeatures decodes a GeoJSON FeatureCollection. Subdivision files carry
// the parent country in an "admin" (Natural Earth) or "country" property.
func ParseFeatures(r io.Reader, admin1 bool) ([]Feature, error) {
	var fc struct {
		Type     string       `json:"type"`
		Features []rawFeature `json:"features"`
	}
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("unsupported GeoJSON type: %s", fc.Type)
	}
	out := make([]Feature, 0, len(fc.Features))
	for i, rf := range fc.Features {
		if rf.Geometry == nil {
			continue
		}
		name := prop(rf.Properties, "name", "NAME", "ADMIN", "admin", "name_en")
		if name == "" {
			return nil, fmt.Errorf("feature %d has no name", i)
		}
		polys, err := parseGeometry(rf.Geometry.Type, rf.Geometry.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", name, err)
		}
		ft := Feature{Name: name, Polygons: polys}
		if admin1 {
			ft.Name = prop(rf.Properties, "name", "NAME", "name_en")
			ft.Country = prop(rf.Properties, "admin", "ADMIN", "country", "geonunit")
		} else {
			ft.ISO = isoCode(name, prop(rf.Properties, "iso_a3", "ISO_A3", "ADM0_A3", "adm0_a3"))
		}
		out = append(out, ft)
	}
	return out, nil
}

func prop(p map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := p[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// isoCode prefers the file's code and falls back to a lookup by name.
func isoCode(name, fromFile string) string {
	if len(fromFile) == 3 && fromFile != "-99" {
		return strings.ToUpper(fromFile)
	}
	if c := countries.ByName(name); c != countries.Unknown {
		return c.Alpha3()
	}
	return ""
}

func parseGeometry(typ string, coords json.RawMessage) ([]Polygon, error) {
	switch typ {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(coords, &rings); err != nil {
			return nil, fmt.Errorf("parse polygon coords: %w", err)
		}
		p, err := toPolygon(rings)
		if err != nil {
			return nil, err
		}
		return []Polygon{p}, nil
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(coords, &polys); err != nil {
			return nil, fmt.Errorf("parse multipolygon coords: %w", err)
		}
		out := make([]Polygon, 0, len(polys))
		for _, rings := range polys {
			p, err := toPolygon(rings)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", typ)
	}
}

func toPolygon(rings [][][]float64) (Polygon, error) {
	if len(rings) == 0 {
		return nil, errors.New("empty polygon")
	}
	out := make(Polygon, 0, len(rings))
	for _, ring := range rings {
		if len(ring) < 4 {
			return nil, errors.New("polygon ring has <4 points")
		}
		r := make(Ring, 0, len(ring))
		for _, xy := range ring {
			if len(xy) < 2 {
				return nil, errors.New("coordinate must be [x,y]")
			}
			r = append(r, [2]float64{xy[0], xy[1]})
		}
		out = append(out, r)
	}
	return out, nil
}

// Country finds a country shape by archive or boundary name.
func (a *Atlas) Country(name string) (Feature, bool) {
	for _, f := range a.Countries {
		if a.names.Same(f.Name, name) {
			return f, true
		}
	}
	return Feature{}, false
}

// SubdivisionsOf returns the subdivisions of a country.
func (a *Atlas) SubdivisionsOf(country string) []Feature {
	var out []Feature
	for _, f := range a.Subdivisions {
		if a.names.Same(f.Country, country) {
			out = append(out, f)
		}
	}
	return out
}

// Subdivision finds one subdivision of a country.
func (a *Atlas) Subdivision(country, name string) (Feature, bool) {
	for _, f := range a.SubdivisionsOf(country) {
		if a.names.Same(f.Name, name) {
			return f, true
		}
	}
	return Feature{}, false
}

func (a *Atlas) Names() *Names { return a.names }
