// Package router exposes dashboard sessions over HTTP. A client creates a
// session, posts commands (selector changes, gestures, table and resize
// actions) and reads back the rendered view as JSON.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/filter"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/resize"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/table"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/logger"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/session"
)

const (
	HeaderClientID = "X-Client-ID"
	maxBody        = 64 << 10
)

// Sessions is the session store the handlers work against.
type Sessions interface {
	Create(ctx context.Context, client string, seed url.Values) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) bool
}

type api struct {
	log      *slog.Logger
	sessions Sessions
	validate *validator.Validate
}

// Mount registers the session API on r under /api/sessions.
func Mount(r chi.Router, log *slog.Logger, sessions Sessions) {
	a := &api{log: log, sessions: sessions, validate: validator.New(validator.WithRequiredStructEnabled())}
	r.Route("/api/sessions", func(r chi.Router) {
		r.Use(instrument)
		r.Post("/", a.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(a.withSession)
			r.Get("/", a.view)
			r.Delete("/", a.remove)
			r.Post("/filters", a.filters)
			r.Post("/click", a.click)
			r.Post("/brush", a.brush)
			r.Get("/hover", a.hover)
			r.Post("/table/sort", a.sortTable)
			r.Post("/table/visibility", a.tableVisibility)
			r.Post("/resize", a.resize)
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics labelled by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	})
}

type ctxKey struct{}

func (a *api) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := a.sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		ctx := logger.WithSession(r.Context(), s.ID)
		ctx = context.WithValue(ctx, ctxKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}

type createRequest struct {
	ClientID string `json:"client_id" validate:"omitempty,max=128,printascii"`
	Query    string `json:"query" validate:"max=2048"`
}

type createResponse struct {
	ID   string       `json:"id"`
	View session.View `json:"view"`
}

// create starts a session. The seed filter comes from the body's query
// string, falling back to the request's own query parameters.
func (a *api) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if !a.decode(w, r, &req) {
			return
		}
	}
	if req.ClientID == "" {
		req.ClientID = strings.TrimSpace(r.Header.Get(HeaderClientID))
	}
	seed := r.URL.Query()
	if req.Query != "" {
		q, err := url.ParseQuery(strings.TrimPrefix(req.Query, "?"))
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid query: %v", err), http.StatusBadRequest)
			return
		}
		seed = q
	}

	s, err := a.sessions.Create(r.Context(), req.ClientID, seed)
	if s == nil {
		a.log.ErrorContext(r.Context(), "create session failed", "err", err)
		http.Error(w, "could not create session", http.StatusInternalServerError)
		return
	}
	// a failed bootstrap still yields a session whose view carries the message
	if wantsWait(r) {
		s.Controller.Wait()
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: s.ID, View: s.View.Snapshot()})
}

func wantsWait(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return v
}

// respond writes the session view, optionally after in-flight requests settle.
func respond(w http.ResponseWriter, r *http.Request, s *session.Session, code int) {
	if wantsWait(r) {
		s.Controller.Wait()
	}
	writeJSON(w, code, s.View.Snapshot())
}

func (a *api) view(w http.ResponseWriter, r *http.Request) {
	respond(w, r, sessionFrom(r), http.StatusOK)
}

func (a *api) remove(w http.ResponseWriter, r *http.Request) {
	a.sessions.Delete(sessionFrom(r).ID)
	w.WriteHeader(http.StatusNoContent)
}

type filtersRequest struct {
	Year      *int    `json:"year" validate:"omitempty,gte=1750,lte=2100"`
	Element   *string `json:"element" validate:"omitempty,alphanum,max=8"`
	Country   *string `json:"country" validate:"omitempty,max=64"`
	State     *string `json:"state" validate:"omitempty,max=64"`
	Station   *string `json:"station" validate:"omitempty,max=32"`
	ChartType *string `json:"chart_type" validate:"omitempty,oneof=line bar heatmap"`
}

// filters applies selector changes in dependency order. Each one is debounced
// by the controller, so a multi-field command costs a single fetch cycle.
func (a *api) filters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if !a.decode(w, r, &req) {
		return
	}
	c := sessionFrom(r).Controller
	if req.Year != nil {
		c.SetYear(*req.Year)
	}
	if req.Element != nil {
		c.SetElement(*req.Element)
	}
	if req.Country != nil {
		c.SetCountry(*req.Country)
	}
	if req.State != nil {
		c.SetRegion(*req.State)
	}
	if req.Station != nil {
		c.SetStation(*req.Station)
	}
	if req.ChartType != nil {
		c.SetChartType(filter.ChartType(*req.ChartType))
	}
	respond(w, r, sessionFrom(r), http.StatusAccepted)
}

type clickRequest struct {
	View string `json:"view" validate:"required,oneof=chart map"`
	Rev  uint64 `json:"rev" validate:"required"`
	Mark string `json:"mark" validate:"required,max=160"`
}

// click delivers a click on a mark. A click aimed at a scene that has since
// been redrawn is rejected with 409 so the client can re-read the view.
func (a *api) click(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if !a.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r)
	if !s.Controller.Click(dashboard.View(req.View), req.Rev, req.Mark) {
		http.Error(w, "stale scene or mark not clickable", http.StatusConflict)
		return
	}
	respond(w, r, s, http.StatusAccepted)
}

type brushRequest struct {
	View string  `json:"view" validate:"required,oneof=chart"`
	Rev  uint64  `json:"rev" validate:"required"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
}

func (a *api) brush(w http.ResponseWriter, r *http.Request) {
	var req brushRequest
	if !a.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r)
	sel := scene.Rect{X0: req.X0, Y0: req.Y0, X1: req.X1, Y1: req.Y1}
	if !s.Controller.Brush(dashboard.View(req.View), req.Rev, sel) {
		http.Error(w, "stale scene, no brush, or empty selection", http.StatusConflict)
		return
	}
	respond(w, r, s, http.StatusAccepted)
}

func (a *api) hover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := dashboard.View(q.Get("view"))
	if v != dashboard.ChartView && v != dashboard.MapView {
		http.Error(w, "view must be chart or map", http.StatusBadRequest)
		return
	}
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		http.Error(w, "x and y must be numbers", http.StatusBadRequest)
		return
	}
	tip := sessionFrom(r).Controller.Hover(v, scene.Point{X: x, Y: y})
	writeJSON(w, http.StatusOK, map[string]string{"tooltip": tip})
}

type sortRequest struct {
	Column string `json:"column" validate:"required"`
}

func (a *api) sortTable(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if !a.decode(w, r, &req) {
		return
	}
	col, err := table.ParseColumn(req.Column)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s := sessionFrom(r)
	s.Controller.SortTable(col)
	respond(w, r, s, http.StatusOK)
}

type visibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

func (a *api) tableVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !a.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r)
	s.Controller.SetTableVisible(r.Context(), *req.Visible)
	respond(w, r, s, http.StatusAccepted)
}

type sizeRequest struct {
	Width  float64 `json:"width" validate:"gte=0,lte=10000"`
	Height float64 `json:"height" validate:"gte=0,lte=10000"`
}

type resizeRequest struct {
	Chart sizeRequest `json:"chart"`
	Map   sizeRequest `json:"map"`
}

func (a *api) resize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !a.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r)
	s.Controller.Resize(
		resize.Size{Width: req.Chart.Width, Height: req.Chart.Height},
		resize.Size{Width: req.Map.Width, Height: req.Map.Height},
	)
	respond(w, r, s, http.StatusAccepted)
}

// decode reads and validates a JSON body, answering 400 on failure.
func (a *api) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			http.Error(w, strings.Join(msgs, "; "), http.StatusBadRequest)
			return false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
