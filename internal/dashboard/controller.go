// Package dashboard wires the filter state, the fetch coordinator, the
// renderers and the table into one session. A Controller serializes every
// event, completion and timer fire behind its mutex; renderers run with the
// lock held and call back into the controller's transition methods.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/executor"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/chart"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/fetch"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/filter"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/geomap"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/resize"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/scene"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/table"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/hitevents"
)

const MsgInitFailed = "Failed to initialize, please refresh"

// DefaultYears and DefaultElements keep the selectors usable when the
// bootstrap requests fail.
var (
	DefaultYears    = []int{2024, 2023, 2022, 2021, 2020}
	DefaultElements = []model.Element{
		{Code: "TMAX", Description: "Maximum temperature", Unit: "°C"},
		{Code: "TMIN", Description: "Minimum temperature", Unit: "°C"},
		{Code: "PRCP", Description: "Precipitation", Unit: "mm"},
		{Code: "SNOW", Description: "Snowfall", Unit: "mm"},
		{Code: "SNWD", Description: "Snow depth", Unit: "mm"},
	}
)

// Options are the values the selectors offer.
type Options struct {
	Years     []int           `json:"years"`
	Elements  []model.Element `json:"elements"`
	Countries []string        `json:"countries"`
	States    []string        `json:"states"`
	Stations  []model.Station `json:"stations"`
	Degraded  bool            `json:"degraded,omitempty"`
}

// Binding receives everything the dashboard displays. Calls are made with
// the controller lock held and must not call back into the controller.
type Binding interface {
	ShowChart(s *scene.Scene)
	ShowMap(s *scene.Scene)
	ShowTable(t table.Snapshot)
	ShowProgress(p fetch.Progress)
	ShowMessage(msg string)
	SetURL(v url.Values)
	SetOptions(o Options)
}

// Prefs persists per-client preferences.
type Prefs interface {
	TableVisible(ctx context.Context, client string) (visible, found bool, err error)
	SetTableVisible(ctx context.Context, client string, visible bool) error
}

// Events receives every applied transition.
type Events interface {
	Publish(ev hitevents.Event)
}

type Config struct {
	Source  executor.Interface
	Atlas   *geomap.Atlas
	Map     *geomap.Renderer
	Binding Binding
	Prefs   Prefs
	Events  Events
	Clock   clockwork.Clock
	Logger  *slog.Logger

	SessionID string
	ClientID  string

	Debounce       time.Duration
	ResizeDebounce time.Duration
	ProgressDelay  time.Duration

	ChartSize resize.Size
	MapSize   resize.Size

	// BootstrapRetries bounds the years/elements retries before falling back
	// to the defaults.
	BootstrapRetries    uint64
	BootstrapInterval   time.Duration
	BootstrapMaxElapsed time.Duration
}

type Controller struct {
	mu     sync.Mutex
	closed bool

	src     executor.Interface
	geo     *geomap.Renderer
	bind    Binding
	prefs   Prefs
	events  Events
	clock   clockwork.Clock
	log     *slog.Logger
	session string
	client  string

	retries    uint64
	interval   time.Duration
	maxElapsed time.Duration

	coord    *fetch.Coordinator
	debounce *fetch.Debouncer
	resizer  *resize.Coordinator
	// queued collects the requests of debounced transitions until the
	// window passes.
	queued filter.Request

	state        filter.State
	degraded     bool
	years        []int
	elements     []model.Element
	locations    model.Locations
	stations     []model.Station
	series       []model.RawObservation
	seriesErr    error
	regions      []model.RegionAggregate
	mapErr       error
	unit         string
	table        *table.View
	tableVisible bool
	// statsStale is set when a stats refetch was skipped because the table
	// was hidden.
	statsStale bool

	chartScene *scene.Scene
	mapScene   *scene.Scene
	rev        uint64
}

func New(cfg Config) (*Controller, error) {
	if cfg.Source == nil {
		return nil, errors.New("dashboard: source is required")
	}
	if cfg.Binding == nil {
		return nil, errors.New("dashboard: binding is required")
	}
	if cfg.Map == nil {
		if cfg.Atlas == nil {
			return nil, errors.New("dashboard: atlas or map renderer is required")
		}
		cfg.Map = geomap.NewRenderer(cfg.Atlas, nil, geomap.Options{}, cfg.Logger)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChartSize == (resize.Size{}) {
		cfg.ChartSize = resize.Size{Width: 960, Height: 500}
	}
	if cfg.MapSize == (resize.Size{}) {
		cfg.MapSize = resize.Size{Width: 960, Height: 500}
	}
	if cfg.BootstrapRetries == 0 {
		cfg.BootstrapRetries = 3
	}
	if cfg.BootstrapInterval <= 0 {
		cfg.BootstrapInterval = 200 * time.Millisecond
	}
	log := cfg.Logger.With("session_id", cfg.SessionID)

	c := &Controller{
		src:        cfg.Source,
		geo:        cfg.Map,
		bind:       cfg.Binding,
		prefs:      cfg.Prefs,
		events:     cfg.Events,
		clock:      cfg.Clock,
		log:        log,
		session:    cfg.SessionID,
		client:     cfg.ClientID,
		retries:    cfg.BootstrapRetries,
		interval:   cfg.BootstrapInterval,
		maxElapsed: cfg.BootstrapMaxElapsed,
		table:      table.New(),
	}
	c.coord = fetch.NewCoordinator(fetch.Options{
		Clock:      cfg.Clock,
		Loop:       c,
		Delay:      cfg.ProgressDelay,
		Logger:     log,
		OnProgress: c.bind.ShowProgress,
	})
	c.debounce = fetch.NewDebouncer(cfg.Clock, c, cfg.Debounce)
	c.resizer = resize.New(cfg.Clock, c, cfg.ResizeDebounce, cfg.ChartSize, cfg.MapSize, func(resize.Size, resize.Size) {
		c.renderChart()
		c.renderMap()
	})
	return c, nil
}

// Do runs fn with the controller lock held. It implements fetch.Loop; after
// Close it drops fn.
func (c *Controller) Do(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn()
}

// Start bootstraps the selector lists, seeds the state from the URL query and
// runs the first fetch cycle. Bootstrap failures fall back to the built-in
// lists; Start only fails when the session cannot be set up at all.
func (c *Controller) Start(ctx context.Context, seed url.Values) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("dashboard start: %v", rec)
		}
		if err != nil {
			c.log.Error("dashboard init failed", "err", err)
			c.Do(func() { c.bind.ShowMessage(MsgInitFailed) })
		}
	}()

	st, derr := filter.Decode(seed)
	if derr != nil {
		c.log.Warn("ignoring invalid url parameters", "err", derr)
	}

	degraded := false
	years, yerr := bootstrap(ctx, c, func(ctx context.Context) ([]int, error) { return c.src.Years(ctx) })
	if yerr != nil || len(years) == 0 {
		if ctx.Err() != nil {
			return fmt.Errorf("bootstrap years: %w", ctx.Err())
		}
		c.log.Warn("years bootstrap failed, using defaults", "err", yerr)
		years, degraded = slices.Clone(DefaultYears), true
	}
	if !slices.Contains(years, st.Year) {
		st.SetYear(years[0])
	}

	elements, eerr := bootstrap(ctx, c, func(ctx context.Context) ([]model.Element, error) { return c.src.Elements(ctx, st.Year) })
	if eerr != nil || len(elements) == 0 {
		if ctx.Err() != nil {
			return fmt.Errorf("bootstrap elements: %w", ctx.Err())
		}
		c.log.Warn("elements bootstrap failed, using defaults", "err", eerr)
		elements, degraded = slices.Clone(DefaultElements), true
	}
	if !hasElement(elements, st.Element) {
		st.SetElement(preferredElement(elements))
	}

	visible := false
	if c.prefs != nil && c.client != "" {
		v, found, perr := c.prefs.TableVisible(ctx, c.client)
		switch {
		case perr != nil:
			c.log.Warn("table preference lookup failed", "err", perr)
		case found:
			visible = v
		}
	}

	c.Do(func() {
		c.state = st
		c.years = years
		c.elements = elements
		c.degraded = degraded
		c.tableVisible = visible
		c.publishOptions()
		c.bind.SetURL(filter.Encode(c.state))
		c.renderChart()
		c.renderMap()
		c.renderTable()
		c.refetch(filter.Cascade | filter.Unit)
	})
	return nil
}

func bootstrap[T any](ctx context.Context, c *Controller, op func(context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.interval
	bo.MaxInterval = 10 * c.interval
	bo.MaxElapsedTime = c.maxElapsed
	b := backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx)
	return backoff.RetryWithData(func() (T, error) {
		v, err := op(ctx)
		if errors.Is(err, executor.ErrCircuitOpen) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b)
}

func hasElement(els []model.Element, code string) bool {
	return slices.ContainsFunc(els, func(e model.Element) bool { return strings.EqualFold(e.Code, code) })
}

func preferredElement(els []model.Element) string {
	if hasElement(els, "TMAX") {
		return "TMAX"
	}
	return els[0].Code
}

// State returns a copy of the current filter state.
func (c *Controller) State() filter.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels pending timers and in-flight requests. Later completions are
// dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.debounce.Cancel()
	c.resizer.Cancel()
	c.coord.Close()
	c.closed = true
}

// Wait runs any debounced refetch now and blocks until every issued request
// has delivered its completion.
func (c *Controller) Wait() {
	c.Do(c.debounce.Flush)
	c.coord.Wait()
}

// apply records a transition and schedules what it requires. Must be called
// with the lock held.
func (c *Controller) apply(e filter.Effect) {
	observability.IncTransition(e.Trigger)
	if !e.Changed() {
		return
	}
	c.log.Debug("transition", "trigger", e.Trigger, "refetch", e.Refetch.String(), "state", c.state.Key())
	c.publishEvent(e.Trigger)
	c.bind.SetURL(filter.Encode(c.state))
	if e.Redraw&filter.ChartView != 0 {
		c.renderChart()
	}
	if e.Redraw&filter.MapView != 0 {
		c.renderMap()
	}
	if e.Refetch == 0 {
		return
	}
	if e.Debounce {
		c.queued |= e.Refetch
		c.debounce.Trigger(func() {
			r := c.queued
			c.queued = 0
			c.refetch(r)
		})
		return
	}
	c.refetch(e.Refetch)
}

func (c *Controller) publishEvent(trigger string) {
	if c.events == nil {
		return
	}
	st := c.state
	c.events.Publish(hitevents.Event{
		Session: c.session,
		Trigger: trigger,
		Year:    st.Year,
		Element: st.Element,
		Chart:   string(st.Chart),
		Country: st.Country,
		State:   st.Region,
		Station: st.Station,
		Query:   st.Key(),
		TS:      c.clock.Now().UTC(),
	})
}

func (c *Controller) query() executor.Query {
	st := c.state
	return executor.Query{Year: st.Year, Element: st.Element, Station: st.Station, Country: st.Country, State: st.Region}
}

func (c *Controller) datedQuery() executor.Query {
	q := c.query()
	if r, ok := c.state.ServerDateRange(); ok {
		q.Start, q.End = r.Start, r.End
	}
	return q
}

// refetch issues every request in r against the current state.
func (c *Controller) refetch(r filter.Request) {
	for _, kind := range r.Kinds() {
		c.issue(kind)
	}
}

func (c *Controller) issue(kind filter.Request) {
	st := c.state
	if kind == filter.Elements {
		if st.Year <= 0 {
			c.coord.Skip(kind)
			return
		}
	} else if !st.Ready() {
		c.coord.Skip(kind)
		return
	}

	switch kind {
	case filter.Elements:
		year := st.Year
		fetch.Issue(c.coord, kind, func(ctx context.Context, _ fetch.Notify) ([]model.Element, error) {
			return c.src.Elements(ctx, year)
		}, c.applyElements)
	case filter.Locations:
		q := c.query()
		fetch.Issue(c.coord, kind, func(ctx context.Context, _ fetch.Notify) (model.Locations, error) {
			return c.src.Locations(ctx, q)
		}, c.applyLocations)
	case filter.Stations:
		q := c.query()
		fetch.Issue(c.coord, kind, func(ctx context.Context, _ fetch.Notify) ([]model.Station, error) {
			return c.src.Stations(ctx, q)
		}, c.applyStations)
	case filter.Series:
		q := c.query()
		fetch.Issue(c.coord, kind, func(ctx context.Context, notify fetch.Notify) ([]model.RawObservation, error) {
			return c.src.Series(ctx, q, notify)
		}, c.applySeries)
	case filter.Regions:
		q := c.datedQuery()
		fetch.Issue(c.coord, kind, func(ctx context.Context, _ fetch.Notify) ([]model.RegionAggregate, error) {
			return c.src.Regions(ctx, q)
		}, c.applyRegions)
	case filter.Stats:
		if !c.tableVisible {
			c.statsStale = true
			c.coord.Invalidate(kind)
			c.coord.Skip(kind)
			return
		}
		c.statsStale = false
		q := c.datedQuery()
		fetch.Issue(c.coord, kind, func(ctx context.Context, _ fetch.Notify) ([]model.CountryStat, error) {
			return c.src.CountryStats(ctx, q)
		}, c.applyStats)
	case filter.Unit:
		element := st.Element
		fetch.Issue(c.coord, kind, func(ctx context.Context, _ fetch.Notify) (string, error) {
			return c.src.Unit(ctx, element)
		}, c.applyUnit)
	}
}

func (c *Controller) applyElements(els []model.Element, err error) {
	if err != nil {
		return
	}
	c.elements = els
	c.publishOptions()
	if len(els) > 0 && !hasElement(els, c.state.Element) {
		c.apply(c.state.ReplaceElement(preferredElement(els)))
	}
}

func (c *Controller) applyLocations(l model.Locations, err error) {
	if err != nil {
		l = model.Locations{}
	}
	c.locations = l
	c.publishOptions()
	if c.state.Country == "" {
		// world shapes are clickable only for listed countries
		c.renderMap()
	}
}

// applyStations replaces the station list and drops a selected station that
// is no longer part of it.
func (c *Controller) applyStations(stations []model.Station, err error) {
	if err != nil {
		c.stations = nil
		c.mapErr = err
		c.publishOptions()
		c.renderMap()
		return
	}
	c.stations = stations
	c.publishOptions()
	if id := c.state.Station; id != "" && !slices.ContainsFunc(stations, func(s model.Station) bool { return s.ID == id }) {
		c.log.Info("selected station not available under current filters", "station", id)
		c.apply(c.state.DropStation())
	}
	c.renderMap()
}

func (c *Controller) applySeries(rows []model.RawObservation, err error) {
	c.series, c.seriesErr = rows, err
	if err != nil {
		c.series = nil
	}
	c.renderChart()
}

func (c *Controller) applyRegions(rows []model.RegionAggregate, err error) {
	c.regions, c.mapErr = rows, err
	if err != nil {
		c.regions = nil
	}
	c.renderMap()
}

func (c *Controller) applyStats(rows []model.CountryStat, err error) {
	if err != nil {
		c.table.SetError(err)
	} else {
		c.table.SetRows(rows)
	}
	c.renderTable()
}

func (c *Controller) applyUnit(unit string, err error) {
	if err != nil {
		unit = ""
	}
	c.unit = unit
	c.table.SetUnit(unit)
	c.renderTable()
}

func (c *Controller) publishOptions() {
	c.bind.SetOptions(Options{
		Years:     c.years,
		Elements:  c.elements,
		Countries: c.locations.Countries,
		States:    c.locations.States,
		Stations:  c.stations,
		Degraded:  c.degraded,
	})
}

func (c *Controller) stationName(id string) string {
	for _, s := range c.stations {
		if s.ID == id {
			return s.Name
		}
	}
	return ""
}

func (c *Controller) nextRev() uint64 {
	c.rev++
	return c.rev
}

func (c *Controller) renderChart() {
	size := c.resizer.Chart()
	s := chart.Render(chart.Input{
		State:       c.state,
		Series:      c.series,
		Err:         c.seriesErr,
		StationName: c.stationName(c.state.Station),
		Width:       size.Width,
		Height:      size.Height,
	}, actions{c})
	s.Rev = c.nextRev()
	c.chartScene = s
	observability.IncRender(s.View, s.Mode)
	c.bind.ShowChart(s)
}

func (c *Controller) renderMap() {
	size := c.resizer.Map()
	s := c.geo.Render(geomap.Input{
		State:     c.state,
		Regions:   c.regions,
		Stations:  c.stations,
		Countries: c.locations.Countries,
		Err:       c.mapErr,
		Width:     size.Width,
		Height:    size.Height,
	}, actions{c})
	s.Rev = c.nextRev()
	c.mapScene = s
	observability.IncRender(s.View, s.Mode)
	c.bind.ShowMap(s)
}

func (c *Controller) renderTable() {
	c.bind.ShowTable(c.table.Snapshot(c.tableVisible))
}
