package chart

import (
	"fmt"
	"strconv"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/filter"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/palette"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scale"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
)

// OutsideFill fills cells outside an active heatmap selection.
const OutsideFill = "#eceff1"

// renderHeatmap draws all 372 cells. With a selection active, only the
// selected cells are coloured and the colour domain comes from them alone.
func renderHeatmap(in Input, act Actions) *scene.Scene {
	s := newScene(in, "heatmap")
	w, h := s.PlotWidth(), s.PlotHeight()

	days := make([]string, GridDays)
	for i := range days {
		days[i] = strconv.Itoa(i + 1)
	}
	x := scale.NewBand(days, 0, w, 0.01)
	y := scale.NewBand(monthNames[:], 0, h, 0.01)

	cells := HeatmapGrid(in.Series)
	sel, zoomed := in.State.HeatmapZoom()
	inSel := func(c HeatCell) bool { return !zoomed || sel.ContainsCell(c.Month, c.Day) }

	var vals []float64
	for _, c := range cells {
		if !c.NoData && inSel(c) {
			vals = append(vals, c.Value)
		}
	}
	lo, hi, _ := palette.Extent(vals)
	colour := palette.ForElement(in.State.Element, lo, hi)

	axisLine(s, "x-axis", 0, h, w, h)
	axisLine(s, "y-axis", 0, 0, 0, h)
	for i, d := range days {
		if i%5 != 0 {
			continue
		}
		px, _ := x.Pos(d)
		xTick(s, "x-tick-"+d, px+x.Bandwidth()/2, d)
	}
	for _, m := range monthNames {
		py, _ := y.Pos(m)
		yTick(s, "y-tick-"+m, py+y.Bandwidth()/2, m)
	}

	s.SetBrush(scene.BrushXY, func(r scene.Rect) {
		act.BrushHeatmap(filter.HeatmapZoom{
			StartDay:   x.At(r.X0) + 1,
			EndDay:     x.At(r.X1) + 1,
			StartMonth: y.At(r.Y0) + 1,
			EndMonth:   y.At(r.Y1) + 1,
		})
	})

	label := model.ValueLabel(in.State.Element)
	for _, c := range cells {
		px, _ := x.Pos(days[c.Day-1])
		py, _ := y.Pos(MonthName(c.Month))
		m := scene.Mark{
			ID:     fmt.Sprintf("cell-%d-%d", c.Month, c.Day),
			Kind:   scene.KindRect,
			Layer:  scene.LayerData,
			Class:  "heat-rect",
			X:      px,
			Y:      py,
			W:      x.Bandwidth(),
			H:      y.Bandwidth(),
			NoData: c.NoData,
			Datum:  c,
		}
		switch {
		case !inSel(c):
			m.Class = "heat-rect outside"
			m.Fill = OutsideFill
		case c.NoData:
			m.Fill = palette.NoData
			m.Tooltip = fmt.Sprintf("%s %d\n%s: No data", MonthName(c.Month), c.Day, label)
		default:
			m.Fill = colour.Color(c.Value)
			m.Tooltip = heatTooltip(c, label, in.StationName)
		}
		s.Add(m)
	}

	axisLabels(s, "Day of Month", "Month")
	if zoomed {
		resetButton(s, act.ResetHeatmapZoom)
	}
	return s
}

func heatTooltip(c HeatCell, label, station string) string {
	out := fmt.Sprintf("%s %d\n%s: %s", MonthName(c.Month), c.Day, label, formatValue(c.Value))
	if station != "" {
		return out + "\nStation: " + station
	}
	return out + fmt.Sprintf("\nStations: %d", c.Stations)
}
