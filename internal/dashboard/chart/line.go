package chart

import (
	"fmt"
	"strings"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/palette"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scale"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
)

// renderLine always aggregates the unfiltered series; the zoom only narrows
// the x domain and the drawn points.
func renderLine(in Input, act Actions) *scene.Scene {
	s := newScene(in, "line")
	s.Notes = append(s.Notes, ZoomInstructions)
	w, h := s.PlotWidth(), s.PlotHeight()

	all := AggregateByDate(in.Series)
	zoom, zoomed := in.State.LineZoom()

	shown := all
	start, end := all[0].Date, all[len(all)-1].Date
	if zoomed {
		start, end = zoom.Start, zoom.End
		shown = shown[:0:0]
		for _, p := range all {
			if zoom.Contains(p.Date) {
				shown = append(shown, p)
			}
		}
	}

	x := scale.NewTime(start, end, 0, w)
	yPts := shown
	if len(yPts) == 0 {
		yPts = all
	}
	lo, hi := yPts[0].Value, yPts[0].Value
	for _, p := range yPts[1:] {
		lo, hi = min(lo, p.Value), max(hi, p.Value)
	}
	y := scale.NewLinear(lo, hi, h, 0).Nice(10)

	axisLine(s, "x-axis", 0, h, w, h)
	axisLine(s, "y-axis", 0, 0, 0, h)
	for i, t := range x.Ticks(10) {
		xTick(s, fmt.Sprintf("x-tick-%d", i), x.Map(t), t.Format("Jan 02"))
	}
	for i, v := range y.Ticks(10) {
		yTick(s, fmt.Sprintf("y-tick-%d", i), y.Map(v), trimFloat(v))
	}

	// brush capture sits below the data marks so points keep their tooltips
	s.SetBrush(scene.BrushX, func(sel scene.Rect) {
		act.BrushLine(x.Invert(sel.X0), x.Invert(sel.X1))
	})

	label := model.ValueLabel(in.State.Element)
	path := make([]scene.Point, 0, len(shown))
	for _, p := range shown {
		path = append(path, scene.Point{X: x.Map(p.Date), Y: y.Map(p.Value)})
	}
	s.Add(scene.Mark{ID: "line-path", Kind: scene.KindPath, Layer: scene.LayerData, Class: "line-path", Points: path, Stroke: palette.LineStroke})

	for _, p := range shown {
		s.Add(scene.Mark{
			ID:      "dot-" + model.FormatDate(p.Date),
			Kind:    scene.KindCircle,
			Layer:   scene.LayerData,
			Class:   "dot",
			X:       x.Map(p.Date),
			Y:       y.Map(p.Value),
			R:       3,
			Fill:    palette.LineStroke,
			Tooltip: lineTooltip(p, label, in.StationName),
			Datum:   p,
		})
	}

	axisLabels(s, "Date", label)
	if zoomed {
		resetButton(s, act.ResetLineZoom)
	}
	return s
}

func lineTooltip(p Point, label, station string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\nAverage %s: %s", model.FormatDate(p.Date), label, formatValue(p.Value))
	if station != "" {
		fmt.Fprintf(&b, "\nStation: %s", station)
	} else {
		fmt.Fprintf(&b, "\nStations: %d", p.Count)
	}
	return b.String()
}

func trimFloat(v float64) string {
	out := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	if out == "-0" {
		return "0"
	}
	return out
}
