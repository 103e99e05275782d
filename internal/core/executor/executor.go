// Package executor calls the columnar query service. Every call goes through
// a circuit breaker and, when a store is configured, the shared payload cache.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/cache"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/cache/keys"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
)

var (
	ErrCircuitOpen = errors.New("query service circuit open")
	ErrUpstream    = errors.New("query service error")
)

// HeaderDataSource carries the cache vs materialized indicator.
const HeaderDataSource = "X-Data-Source"

const DefaultSeriesLimit = 5000

// Notify receives the data source indicator once response headers arrive.
type Notify = func(model.DataSource)

// Query is the filter shared by the filtered endpoints. Zero values are
// omitted from the request.
type Query struct {
	Year    int
	Element string
	Station string
	Country string
	State   string
	Start   time.Time
	End     time.Time
}

type Interface interface {
	Years(ctx context.Context) ([]int, error)
	Elements(ctx context.Context, year int) ([]model.Element, error)
	Locations(ctx context.Context, q Query) (model.Locations, error)
	Stations(ctx context.Context, q Query) ([]model.Station, error)
	Series(ctx context.Context, q Query, notify Notify) ([]model.RawObservation, error)
	Regions(ctx context.Context, q Query) ([]model.RegionAggregate, error)
	CountryStats(ctx context.Context, q Query) ([]model.CountryStat, error)
	Unit(ctx context.Context, element string) (string, error)
}

type Options struct {
	SeriesLimit int
	// RawTenths marks a query service that returns archive tenths. By default
	// values arrive already in display units and pass through unchanged.
	RawTenths bool

	BreakerMaxRequests uint32
	BreakerTimeout     time.Duration
	// BreakerFailures is the number of consecutive failures that opens the
	// breaker.
	BreakerFailures uint32

	Cache          cache.Interface
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration
}

type Executor struct {
	logger    *slog.Logger
	client    *http.Client
	base      *url.URL
	cb        *gobreaker.CircuitBreaker
	limit     int
	rawTenths bool
	store     cache.Interface
	index     cache.Indexer
	ttl       time.Duration
	opTimeout time.Duration
	startNow  func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, baseURL string, o Options) (*Executor, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse query service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("query service url %q must be absolute", baseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if o.SeriesLimit <= 0 {
		o.SeriesLimit = DefaultSeriesLimit
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 10 * time.Minute
	}
	if o.CacheOpTimeout <= 0 {
		o.CacheOpTimeout = 250 * time.Millisecond
	}
	failures := o.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "query-service",
		MaxRequests: o.BreakerMaxRequests,
		Interval:    time.Minute,
		Timeout:     o.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	var index cache.Indexer
	if ix, ok := o.Cache.(cache.Indexer); ok {
		index = ix
	}
	return &Executor{
		logger:    logger,
		client:    client,
		base:      u,
		cb:        cb,
		limit:     o.SeriesLimit,
		rawTenths: o.RawTenths,
		store:     o.Cache,
		index:     index,
		ttl:       o.CacheTTL,
		opTimeout: o.CacheOpTimeout,
		startNow:  time.Now,
	}, nil
}

func (e *Executor) Years(ctx context.Context) ([]int, error) {
	var years []int
	if err := e.getJSON(ctx, "years", 0, nil, nil, &years, "years"); err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

func (e *Executor) Elements(ctx context.Context, year int) ([]model.Element, error) {
	var out []model.Element
	if err := e.getJSON(ctx, "elements", year, nil, nil, &out, "elements", strconv.Itoa(year)); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Code = strings.ToUpper(strings.TrimSpace(out[i].Code))
	}
	return out, nil
}

func (e *Executor) Locations(ctx context.Context, q Query) (model.Locations, error) {
	var out model.Locations
	p := url.Values{}
	setIf(p, "country", q.Country)
	err := e.getJSON(ctx, "locations", q.Year, p, nil, &out, "locations", strconv.Itoa(q.Year), q.Element)
	return out, err
}

func (e *Executor) Stations(ctx context.Context, q Query) ([]model.Station, error) {
	var out []model.Station
	p := url.Values{}
	setIf(p, "country", q.Country)
	setIf(p, "state", q.State)
	if err := e.getJSON(ctx, "stations", q.Year, p, nil, &out, "stations", strconv.Itoa(q.Year), q.Element); err != nil {
		return nil, err
	}
	for i := range out {
		if v := out[i].Value; v != nil {
			c := e.value(*v, q.Element)
			out[i].Value = &c
		}
	}
	return out, nil
}

type seriesRow struct {
	Date         string  `json:"date"`
	Value        float64 `json:"value"`
	StationCount int     `json:"station_count"`
	Month        int     `json:"month"`
	Day          int     `json:"day"`
	Year         int     `json:"year"`
}

// Series fetches the daily series.
func (e *Executor) Series(ctx context.Context, q Query, notify Notify) ([]model.RawObservation, error) {
	var rows []seriesRow
	p := url.Values{}
	p.Set("limit", strconv.Itoa(e.limit))
	setIf(p, "station", q.Station)
	setIf(p, "country", q.Country)
	setIf(p, "state", q.State)
	if err := e.getJSON(ctx, "series", q.Year, p, notify, &rows, "weather", strconv.Itoa(q.Year), q.Element); err != nil {
		return nil, err
	}
	out := make([]model.RawObservation, 0, len(rows))
	for _, r := range rows {
		d, err := model.ParseArchiveDate(r.Date)
		if err != nil {
			e.logger.Debug("skipping series row", "err", err)
			continue
		}
		out = append(out, model.RawObservation{
			Date:         d,
			Value:        e.value(r.Value, q.Element),
			StationCount: r.StationCount,
			Month:        r.Month,
			Day:          r.Day,
			Year:         r.Year,
		})
	}
	return out, nil
}

func (e *Executor) Regions(ctx context.Context, q Query) ([]model.RegionAggregate, error) {
	var out []model.RegionAggregate
	if err := e.getJSON(ctx, "regions", q.Year, dated(q), nil, &out, "regions", strconv.Itoa(q.Year), q.Element); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].MeanValue = e.value(out[i].MeanValue, q.Element)
	}
	return out, nil
}

func (e *Executor) CountryStats(ctx context.Context, q Query) ([]model.CountryStat, error) {
	var out []model.CountryStat
	if err := e.getJSON(ctx, "country_stats", q.Year, dated(q), nil, &out, "country-stats", strconv.Itoa(q.Year), q.Element); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].MaxValue = e.value(out[i].MaxValue, q.Element)
		out[i].MinValue = e.value(out[i].MinValue, q.Element)
	}
	return out, nil
}

func (e *Executor) Unit(ctx context.Context, element string) (string, error) {
	var out struct {
		Unit string `json:"unit"`
	}
	if err := e.getJSON(ctx, "unit", 0, nil, nil, &out, "unit", strings.ToUpper(element)); err != nil {
		return "", err
	}
	return out.Unit, nil
}

// value converts archive tenths only for a raw-tenths service.
func (e *Executor) value(v float64, element string) float64 {
	if e.rawTenths {
		return model.ConvertValue(v, element)
	}
	return v
}

func dated(q Query) url.Values {
	p := url.Values{}
	setIf(p, "country", q.Country)
	setIf(p, "state", q.State)
	if !q.Start.IsZero() && !q.End.IsZero() {
		p.Set("startDate", model.FormatDate(q.Start))
		p.Set("endDate", model.FormatDate(q.End))
	}
	return p
}

func setIf(p url.Values, k, v string) {
	if v = strings.TrimSpace(v); v != "" {
		p.Set(k, v)
	}
}

func (e *Executor) getJSON(ctx context.Context, op string, year int, params url.Values, notify Notify, dst any, segs ...string) error {
	b, err := e.fetch(ctx, op, year, e.endpoint(segs...), params, notify)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (e *Executor) endpoint(segs ...string) string {
	return path.Join(append([]string{"/", e.base.Path, "api"}, segs...)...)
}

// fetch returns the payload for path, served from the shared cache when
// possible. Stored payloads are indexed under their dataset year.
func (e *Executor) fetch(ctx context.Context, op string, year int, p string, params url.Values, notify Notify) ([]byte, error) {
	if notify == nil {
		notify = func(model.DataSource) {}
	}
	var key string
	if e.store != nil {
		key = keys.Key(p, params)
		if b, ok := e.cached(ctx, key); ok {
			observability.IncCacheHit()
			notify(model.SourceCache)
			return b, nil
		}
		observability.IncCacheMiss()
	}

	b, err := e.upstream(ctx, op, p, params, notify)
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opTimeout)
		if err := e.store.Set(cctx, key, b, e.ttl); err != nil {
			e.logger.Warn("cache set failed", "op", op, "err", err)
		} else if e.index != nil {
			if err := e.index.Index(cctx, keys.YearIndex(year), key, e.ttl); err != nil {
				e.logger.Warn("cache index failed", "op", op, "year", year, "err", err)
			}
		}
		cancel()
	}
	return b, nil
}

// Invalidate drops every cached payload of year and returns how many keys
// were indexed. Without an indexing store it is a no-op.
func (e *Executor) Invalidate(ctx context.Context, year int) (int, error) {
	if e.store == nil || e.index == nil {
		return 0, nil
	}
	set := keys.YearIndex(year)
	members, err := e.index.Members(ctx, set)
	if err != nil {
		return 0, fmt.Errorf("invalidate year %d: %w", year, err)
	}
	if err := e.store.Del(ctx, append(members, set)...); err != nil {
		return 0, fmt.Errorf("invalidate year %d: %w", year, err)
	}
	e.logger.Info("cache invalidated", "year", year, "keys", len(members))
	return len(members), nil
}

func (e *Executor) cached(ctx context.Context, key string) ([]byte, bool) {
	cctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	got, err := e.store.MGet(cctx, []string{key})
	if err != nil {
		e.logger.Warn("cache get failed", "key", key, "err", err)
		return nil, false
	}
	b, ok := got[key]
	return b, ok
}

// outcome carries results the breaker must not count as failures.
type outcome struct {
	body []byte
	err  error
}

func (e *Executor) upstream(ctx context.Context, op, p string, params url.Values, notify Notify) ([]byte, error) {
	u := *e.base
	u.Path = p
	u.RawPath = ""
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	start := e.startNow()
	res, err := e.cb.Execute(func() (interface{}, error) {
		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return outcome{err: ctx.Err()}, nil
			}
			return nil, fmt.Errorf("do request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 500 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
			return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(b)))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
			return outcome{err: fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(b)))}, nil
		}
		notify(model.ParseDataSource(resp.Header.Get(HeaderDataSource)))

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return outcome{err: ctx.Err()}, nil
			}
			return nil, fmt.Errorf("read body: %w", err)
		}
		return outcome{body: b}, nil
	})
	observability.ObserveUpstreamLatency(op, time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := res.(outcome)
	if out.err != nil {
		return nil, fmt.Errorf("%s: %w", op, out.err)
	}
	e.logger.Debug("query service call", "op", op, "path", p, "duration", time.Since(start).String())
	return out.body, nil
}
