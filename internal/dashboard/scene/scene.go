// Package scene is the retained drawing model produced by the renderers. A
// scene is a flat list of marks ordered by layer plus an optional brush
// capture region; interaction handlers hang off marks and the brush and are
// not serialized.
package scene

import (
	"sort"
)

type Layer int

const (
	LayerAxes Layer = iota
	LayerBrush
	LayerData
	LayerControls
)

func (l Layer) String() string {
	switch l {
	case LayerAxes:
		return "axes"
	case LayerBrush:
		return "brush"
	case LayerData:
		return "data"
	case LayerControls:
		return "controls"
	}
	return "unknown"
}

type Kind string

const (
	KindRect   Kind = "rect"
	KindCircle Kind = "circle"
	KindPath   Kind = "path"
	KindLine   Kind = "line"
	KindText   Kind = "text"
	KindShape  Kind = "shape"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Norm orders the corners so that X0<=X1 and Y0<=Y1.
func (r Rect) Norm() Rect {
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

func (r Rect) Contains(p Point) bool {
	n := r.Norm()
	return p.X >= n.X0 && p.X <= n.X1 && p.Y >= n.Y0 && p.Y <= n.Y1
}

func (r Rect) Empty() bool {
	n := r.Norm()
	return n.X1-n.X0 <= 0 && n.Y1-n.Y0 <= 0
}

// Mark is one drawn primitive. Coordinates are relative to the plot origin
// (inside the margins). Rings is used by map shapes, Points by paths.
type Mark struct {
	ID      string      `json:"id"`
	Kind    Kind        `json:"kind"`
	Layer   Layer       `json:"layer"`
	Class   string      `json:"class,omitempty"`
	X       float64     `json:"x,omitempty"`
	Y       float64     `json:"y,omitempty"`
	W       float64     `json:"w,omitempty"`
	H       float64     `json:"h,omitempty"`
	R       float64     `json:"r,omitempty"`
	Points  []Point     `json:"points,omitempty"`
	Rings   [][]Point   `json:"rings,omitempty"`
	Fill    string      `json:"fill,omitempty"`
	Stroke  string      `json:"stroke,omitempty"`
	Text    string      `json:"text,omitempty"`
	Anchor  string      `json:"anchor,omitempty"`
	Rotate  float64     `json:"rotate,omitempty"`
	Tooltip string      `json:"tooltip,omitempty"`
	NoData  bool        `json:"no_data,omitempty"`
	Datum   interface{} `json:"datum,omitempty"`

	OnClick func() `json:"-"`
}

// Clickable reports whether the mark carries a click handler.
func (m Mark) Clickable() bool { return m.OnClick != nil }

// Bounds is the mark's hit box.
func (m Mark) Bounds() Rect {
	switch m.Kind {
	case KindCircle:
		return Rect{X0: m.X - m.R, Y0: m.Y - m.R, X1: m.X + m.R, Y1: m.Y + m.R}
	case KindPath, KindShape:
		pts := m.Points
		for _, ring := range m.Rings {
			pts = append(pts[:len(pts):len(pts)], ring...)
		}
		if len(pts) == 0 {
			return Rect{}
		}
		b := Rect{X0: pts[0].X, Y0: pts[0].Y, X1: pts[0].X, Y1: pts[0].Y}
		for _, p := range pts[1:] {
			b.X0, b.X1 = min(b.X0, p.X), max(b.X1, p.X)
			b.Y0, b.Y1 = min(b.Y0, p.Y), max(b.Y1, p.Y)
		}
		return b
	default:
		return Rect{X0: m.X, Y0: m.Y, X1: m.X + m.W, Y1: m.Y + m.H}
	}
}

// BrushAxis is the dimension a brush selects along.
type BrushAxis string

const (
	BrushX  BrushAxis = "x"
	BrushXY BrushAxis = "xy"
)

// Brush is the capture region for drag selections. It spans the whole plot
// and sits in LayerBrush, below data marks.
type Brush struct {
	Axis   BrushAxis `json:"axis"`
	Extent Rect      `json:"extent"`

	OnEnd func(sel Rect) `json:"-"`
}

type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Scene is a fully drawn view. A renderer always builds a new scene, so a
// redraw never leaves marks from a previous one behind.
type Scene struct {
	View    string   `json:"view"`
	Mode    string   `json:"mode"`
	Rev     uint64   `json:"rev"`
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Margin  Margin   `json:"margin"`
	Marks   []Mark   `json:"marks"`
	Brush   *Brush   `json:"brush,omitempty"`
	Message string   `json:"message,omitempty"`
	Notes   []string `json:"notes,omitempty"`
}

// New returns an empty scene for a viewport of w x h with margins m.
func New(view, mode string, w, h float64, m Margin) *Scene {
	return &Scene{View: view, Mode: mode, Width: w, Height: h, Margin: m}
}

// PlotWidth is the drawable width inside the margins.
func (s *Scene) PlotWidth() float64 { return max(0, s.Width-s.Margin.Left-s.Margin.Right) }

// PlotHeight is the drawable height inside the margins.
func (s *Scene) PlotHeight() float64 { return max(0, s.Height-s.Margin.Top-s.Margin.Bottom) }

// Plot is the plot area in plot coordinates.
func (s *Scene) Plot() Rect { return Rect{X1: s.PlotWidth(), Y1: s.PlotHeight()} }

// Add appends marks. Draw order is resolved by Ordered.
func (s *Scene) Add(m ...Mark) { s.Marks = append(s.Marks, m...) }

// SetBrush installs a brush capture spanning the plot.
func (s *Scene) SetBrush(axis BrushAxis, onEnd func(Rect)) {
	s.Brush = &Brush{Axis: axis, Extent: s.Plot(), OnEnd: onEnd}
}

// Ordered returns the marks in draw order: by layer, then insertion order.
func (s *Scene) Ordered() []Mark {
	out := make([]Mark, len(s.Marks))
	copy(out, s.Marks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Layer < out[j].Layer })
	return out
}

// Finalize puts the marks into draw order in place. Renderers call it once
// the scene is complete.
func (s *Scene) Finalize() *Scene {
	s.Marks = s.Ordered()
	return s
}

// ByClass returns the marks whose class matches.
func (s *Scene) ByClass(class string) []Mark {
	var out []Mark
	for _, m := range s.Marks {
		if m.Class == class {
			out = append(out, m)
		}
	}
	return out
}

// Find returns the mark with the given id.
func (s *Scene) Find(id string) (Mark, bool) {
	for _, m := range s.Marks {
		if m.ID == id {
			return m, true
		}
	}
	return Mark{}, false
}

// Target is what a pointer at a position lands on.
type Target struct {
	Mark  *Mark
	Brush bool
}

// HitTest resolves the topmost interactive element under p. Data and control
// marks win over the brush capture, which wins over axes.
func (s *Scene) HitTest(p Point) Target {
	ordered := s.Ordered()
	for i := len(ordered) - 1; i >= 0; i-- {
		m := ordered[i]
		if m.Layer <= LayerBrush {
			break
		}
		if (m.Tooltip != "" || m.OnClick != nil) && m.Bounds().Contains(p) {
			return Target{Mark: &ordered[i]}
		}
	}
	if s.Brush != nil && s.Brush.Extent.Contains(p) {
		return Target{Brush: true}
	}
	return Target{}
}

// Click invokes the click handler of the mark with id.
func (s *Scene) Click(id string) bool {
	m, ok := s.Find(id)
	if !ok || m.OnClick == nil {
		return false
	}
	m.OnClick()
	return true
}

// EndBrush delivers a brush release. Empty selections are ignored, as is a
// release on a scene without a brush.
func (s *Scene) EndBrush(sel Rect) bool {
	if s.Brush == nil || s.Brush.OnEnd == nil {
		return false
	}
	sel = clampRect(sel.Norm(), s.Brush.Extent)
	if s.Brush.Axis == BrushX {
		if sel.X1-sel.X0 <= 0 {
			return false
		}
	} else if sel.X1-sel.X0 <= 0 && sel.Y1-sel.Y0 <= 0 {
		return false
	}
	s.Brush.OnEnd(sel)
	return true
}

// Hover returns the tooltip under p, if any.
func (s *Scene) Hover(p Point) string {
	t := s.HitTest(p)
	if t.Mark == nil {
		return ""
	}
	return t.Mark.Tooltip
}

func clampRect(r, bounds Rect) Rect {
	r.X0 = min(max(r.X0, bounds.X0), bounds.X1)
	r.X1 = min(max(r.X1, bounds.X0), bounds.X1)
	r.Y0 = min(max(r.Y0, bounds.Y0), bounds.Y1)
	r.Y1 = min(max(r.Y1, bounds.Y0), bounds.Y1)
	return r
}
