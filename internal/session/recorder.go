package session

import (
	"net/url"
	"sync"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/fetch"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/table"
)

// View is what a client reads back after each command.
type View struct {
	Version  uint64            `json:"version"`
	Chart    *scene.Scene      `json:"chart,omitempty"`
	Map      *scene.Scene      `json:"map,omitempty"`
	Table    table.Snapshot    `json:"table"`
	Progress fetch.Progress    `json:"progress"`
	Message  string            `json:"message,omitempty"`
	Query    string            `json:"query"`
	Options  dashboard.Options `json:"options"`
}

// Recorder is the dashboard.Binding of a headless session. It keeps the
// latest of everything shown and bumps Version on every change.
type Recorder struct {
	mu   sync.RWMutex
	view View
}

var _ dashboard.Binding = (*Recorder)(nil)

func (r *Recorder) update(fn func(v *View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.view)
	r.view.Version++
}

func (r *Recorder) ShowChart(s *scene.Scene)      { r.update(func(v *View) { v.Chart = s }) }
func (r *Recorder) ShowMap(s *scene.Scene)        { r.update(func(v *View) { v.Map = s }) }
func (r *Recorder) ShowTable(t table.Snapshot)    { r.update(func(v *View) { v.Table = t }) }
func (r *Recorder) ShowProgress(p fetch.Progress) { r.update(func(v *View) { v.Progress = p }) }
func (r *Recorder) ShowMessage(msg string)        { r.update(func(v *View) { v.Message = msg }) }
func (r *Recorder) SetURL(q url.Values)           { r.update(func(v *View) { v.Query = q.Encode() }) }
func (r *Recorder) SetOptions(o dashboard.Options) {
	r.update(func(v *View) { v.Options = o })
}

// Snapshot returns the current view. Scenes are shared, not copied; the
// controller never mutates a scene after showing it.
func (r *Recorder) Snapshot() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}
