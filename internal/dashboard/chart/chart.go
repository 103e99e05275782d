// Package chart renders the time-series view. Render is a pure function of
// the cached series and the filter state; every call produces a fresh scene
// with its interaction handlers re-armed.
package chart

import (
	"fmt"
	"time"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/filter"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
)

// Margins around the plot area.
var Margins = scene.Margin{Top: 20, Right: 80, Bottom: 70, Left: 80}

const (
	MsgNoData        = "No data available for the selected parameters"
	MsgFiltersNarrow = "No data for the selected location; try widening the country/state filter"
	MsgSelectInputs  = "Select a year and an element to load data"
	ZoomInstructions = "Drag across the chart to zoom into a date range; use Reset Zoom to return"
)

// Actions receives the transitions the chart's gestures request.
type Actions interface {
	BrushLine(start, end time.Time)
	ResetLineZoom()
	BrushHeatmap(z filter.HeatmapZoom)
	ResetHeatmapZoom()
}

// Input is everything a chart render depends on.
type Input struct {
	State       filter.State
	Series      []model.RawObservation
	Err         error
	StationName string
	Width       float64
	Height      float64
}

// Render draws the chart for the current chart type.
func Render(in Input, act Actions) *scene.Scene {
	mode := string(in.State.Chart)
	if in.Err != nil {
		return messageScene(in, "error", fmt.Sprintf("Failed to load data: %v", in.Err))
	}
	if !in.State.Ready() {
		return messageScene(in, "idle", MsgSelectInputs)
	}
	if len(in.Series) == 0 {
		msg := MsgNoData
		if in.State.Country != "" || in.State.Region != "" {
			msg = MsgFiltersNarrow
		}
		return messageScene(in, "empty", msg)
	}

	var s *scene.Scene
	switch in.State.Chart {
	case filter.Bar:
		s = renderBar(in)
	case filter.Heatmap:
		s = renderHeatmap(in, act)
	default:
		mode = string(filter.Line)
		s = renderLine(in, act)
	}
	s.Mode = mode
	return s.Finalize()
}

func newScene(in Input, mode string) *scene.Scene {
	return scene.New("chart", mode, in.Width, in.Height, Margins)
}

// messageScene is a centred message with no axes and no brush.
func messageScene(in Input, mode, msg string) *scene.Scene {
	s := newScene(in, mode)
	s.Message = msg
	s.Add(scene.Mark{
		ID:     "message",
		Kind:   scene.KindText,
		Layer:  scene.LayerControls,
		X:      s.PlotWidth() / 2,
		Y:      s.PlotHeight() / 2,
		Text:   msg,
		Anchor: "middle",
		Fill:   "#7f8c8d",
	})
	if in.State.Chart == filter.Line || in.State.Chart == "" {
		s.Notes = append(s.Notes, ZoomInstructions)
	}
	return s
}

func axisLabels(s *scene.Scene, xLabel, yLabel string) {
	s.Add(
		scene.Mark{
			ID: "y-label", Kind: scene.KindText, Layer: scene.LayerAxes,
			X: -s.Margin.Left + 12, Y: s.PlotHeight() / 2, Rotate: -90,
			Text: yLabel, Anchor: "middle", Fill: "#2c3e50",
		},
		scene.Mark{
			ID: "x-label", Kind: scene.KindText, Layer: scene.LayerAxes,
			X: s.PlotWidth() / 2, Y: s.PlotHeight() + s.Margin.Bottom - 10,
			Text: xLabel, Anchor: "middle", Fill: "#2c3e50",
		},
	)
}

func axisLine(s *scene.Scene, id string, x0, y0, x1, y1 float64) {
	s.Add(scene.Mark{
		ID: id, Kind: scene.KindLine, Layer: scene.LayerAxes,
		Points: []scene.Point{{X: x0, Y: y0}, {X: x1, Y: y1}}, Stroke: "#2c3e50",
	})
}

func xTick(s *scene.Scene, id string, x float64, label string) {
	s.Add(scene.Mark{
		ID: id, Kind: scene.KindText, Layer: scene.LayerAxes, Class: "x-tick",
		X: x, Y: s.PlotHeight() + 16, Text: label, Anchor: "middle",
	})
}

func yTick(s *scene.Scene, id string, y float64, label string) {
	s.Add(scene.Mark{
		ID: id, Kind: scene.KindText, Layer: scene.LayerAxes, Class: "y-tick",
		X: -8, Y: y, Text: label, Anchor: "end",
	})
}

// resetButton is drawn only while a zoom is active.
func resetButton(s *scene.Scene, onClick func()) {
	s.Add(scene.Mark{
		ID: "reset-zoom", Kind: scene.KindRect, Layer: scene.LayerControls, Class: "zoom-reset",
		X: s.PlotWidth() - 80, Y: 10, W: 70, H: 25,
		Fill: "#e74c3c", Text: "Reset Zoom", OnClick: onClick,
	})
}

func formatValue(v float64) string { return fmt.Sprintf("%.2f", v) }
