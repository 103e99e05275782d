package chart

import (
	"fmt"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/palette"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scale"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
)

// renderBar draws monthly means. Bars grow from zero, downwards for negative
// means.
func renderBar(in Input) *scene.Scene {
	s := newScene(in, "bar")
	w, h := s.PlotWidth(), s.PlotHeight()

	bars := AggregateByMonth(in.Series)
	keys := make([]string, len(bars))
	lo, hi := 0.0, 0.0
	for i, b := range bars {
		keys[i] = b.Name
		lo, hi = min(lo, b.Value), max(hi, b.Value)
	}
	x := scale.NewBand(keys, 0, w, 0.1)
	y := scale.NewLinear(lo, hi, h, 0).Nice(10)

	axisLine(s, "x-axis", 0, y.Map(0), w, y.Map(0))
	axisLine(s, "y-axis", 0, 0, 0, h)
	for i, k := range keys {
		px, _ := x.Pos(k)
		xTick(s, fmt.Sprintf("x-tick-%d", i), px+x.Bandwidth()/2, k)
	}
	for i, v := range y.Ticks(10) {
		yTick(s, fmt.Sprintf("y-tick-%d", i), y.Map(v), trimFloat(v))
	}

	label := model.ValueLabel(in.State.Element)
	zero := y.Map(0)
	for _, b := range bars {
		px, _ := x.Pos(b.Name)
		top := y.Map(b.Value)
		s.Add(scene.Mark{
			ID:      fmt.Sprintf("bar-%d", b.Month),
			Kind:    scene.KindRect,
			Layer:   scene.LayerData,
			Class:   "bar",
			X:       px,
			Y:       min(top, zero),
			W:       x.Bandwidth(),
			H:       abs(zero - top),
			Fill:    palette.BarFill,
			Tooltip: fmt.Sprintf("Month: %s\nAverage %s: %s\nData Points: %d", b.Name, label, formatValue(b.Value), b.Count),
			Datum:   b,
		})
	}

	axisLabels(s, "Month", label)
	return s
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
