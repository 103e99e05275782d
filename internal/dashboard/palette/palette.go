// Package palette turns values into fill colours for the chart and map.
package palette

import (
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

const (
	// NoData fills heatmap cells without observations.
	NoData = "#f8f9fa"
	// Neutral fills map shapes without an aggregate.
	Neutral = "#e0e0e0"

	LineStroke = "#3498db"
	BarFill    = "#e74c3c"
	Selected   = "#f39c12"
)

// Interpolator maps t in [0,1] to a colour.
type Interpolator func(t float64) drawing.Color

func ramp(hexes ...string) Interpolator {
	stops := make([]drawing.Color, len(hexes))
	for i, h := range hexes {
		stops[i] = drawing.ColorFromHex(h)
	}
	return func(t float64) drawing.Color {
		if math.IsNaN(t) {
			t = 0
		}
		t = math.Max(0, math.Min(1, t))
		pos := t * float64(len(stops)-1)
		i := int(math.Floor(pos))
		if i >= len(stops)-1 {
			return stops[len(stops)-1]
		}
		return lerp(stops[i], stops[i+1], pos-float64(i))
	}
}

func lerp(a, b drawing.Color, f float64) drawing.Color {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*f))
	}
	return drawing.Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

var (
	// Blues is a sequential light-to-dark blue ramp.
	Blues = ramp("f7fbff", "deebf7", "c6dbef", "9ecae1", "6baed6", "4292c6", "2171b5", "08519c", "08306b")
	// RdYlBu is a diverging red-yellow-blue ramp.
	RdYlBu = ramp("a50026", "d73027", "f46d43", "fdae61", "fee090", "ffffbf", "e0f3f8", "abd9e9", "74add1", "4575b4", "313695")
)

// Hex renders a colour as #rrggbb.
func Hex(c drawing.Color) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Sequential is a colour scale over a value domain.
type Sequential struct {
	lo, hi float64
	interp Interpolator
	valid  bool
}

// ForElement picks the sequential ramp for precipitation-like elements and
// the diverging one otherwise. Temperatures use RdYlBu reversed so warm
// values are red.
func ForElement(element string, lo, hi float64) Sequential {
	if model.IsPrecipitationLike(element) {
		return NewSequential(lo, hi, Blues)
	}
	return NewSequential(lo, hi, func(t float64) drawing.Color { return RdYlBu(1 - t) })
}

func NewSequential(lo, hi float64, interp Interpolator) Sequential {
	valid := !math.IsNaN(lo) && !math.IsNaN(hi) && !math.IsInf(lo, 0) && !math.IsInf(hi, 0)
	if lo > hi {
		lo, hi = hi, lo
	}
	return Sequential{lo: lo, hi: hi, interp: interp, valid: valid}
}

// Color returns the fill for v. A degenerate domain maps to the middle of
// the ramp.
func (s Sequential) Color(v float64) string {
	if !s.valid || s.interp == nil || math.IsNaN(v) {
		return Neutral
	}
	t := 0.5
	if s.hi > s.lo {
		t = (v - s.lo) / (s.hi - s.lo)
	}
	return Hex(s.interp(t))
}

func (s Sequential) Domain() (float64, float64) { return s.lo, s.hi }

// Extent returns the min and max of vals. ok is false when vals is empty.
func Extent(vals []float64) (lo, hi float64, ok bool) {
	for i, v := range vals {
		if i == 0 {
			lo, hi = v, v
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, len(vals) > 0
}
