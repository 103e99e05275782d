package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/cache/redisstore"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

type upstreamRecorder struct {
	mu     sync.Mutex
	calls  int
	paths  []string
	query  url.Values
	status int
	source string
	body   string
}

func (u *upstreamRecorder) handler(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.calls++
	u.paths = append(u.paths, r.URL.Path)
	u.query = r.URL.Query()
	status, source, body := u.status, u.source, u.body
	u.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if source != "" {
		w.Header().Set(HeaderDataSource, source)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (u *upstreamRecorder) snapshot() (int, []string, url.Values) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls, append([]string(nil), u.paths...), u.query
}

func newExec(t *testing.T, up *upstreamRecorder, o Options) *Executor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec, err := New(logger, srv.Client(), srv.URL, o)
	if err != nil {
		t.Fatalf("executor.New: %v", err)
	}
	return exec
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New(nil, nil, "/relative", Options{}); err == nil {
		t.Fatalf("expected error for relative url")
	}
}

func TestSeries_ParamsAndSource(t *testing.T) {
	up := &upstreamRecorder{
		source: "materialized",
		body:   `[{"date":"20240101","value":25,"station_count":3,"month":1,"day":1,"year":2024},{"date":"bogus","value":1}]`,
	}
	exec := newExec(t, up, Options{})

	var got []model.DataSource
	rows, err := exec.Series(context.Background(), Query{Year: 2024, Element: "TMAX", Station: "CA1", Country: "CANADA"},
		func(s model.DataSource) { got = append(got, s) })
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d want 1 (bad dates skipped)", len(rows))
	}
	r := rows[0]
	if r.Value != 25 || r.StationCount != 3 || !r.Date.Equal(model.Date(2024, time.January, 1)) {
		t.Fatalf("unexpected row %+v", r)
	}
	if len(got) != 1 || got[0] != model.SourceMaterialized {
		t.Fatalf("notify=%v want [materialized]", got)
	}

	_, paths, q := up.snapshot()
	if paths[0] != "/api/weather/2024/TMAX" {
		t.Fatalf("path=%q", paths[0])
	}
	if q.Get("limit") != "5000" || q.Get("station") != "CA1" || q.Get("country") != "CANADA" || q.Has("state") {
		t.Fatalf("query=%v", q.Encode())
	}
}

func TestValues_PassThroughUnlessRawTenths(t *testing.T) {
	const body = `[{"date":"20240101","value":25.0,"station_count":1,"month":1,"day":1,"year":2024},` +
		`{"date":"20240101","value":27.0,"station_count":1,"month":1,"day":1,"year":2024}]`
	tests := []struct {
		name string
		raw  bool
		want []float64
	}{
		{"display units", false, []float64{25, 27}},
		{"raw tenths", true, []float64{2.5, 2.7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newExec(t, &upstreamRecorder{body: body}, Options{RawTenths: tt.raw})
			rows, err := exec.Series(context.Background(), Query{Year: 2024, Element: "TMAX"}, nil)
			if err != nil {
				t.Fatalf("Series: %v", err)
			}
			if len(rows) != len(tt.want) {
				t.Fatalf("rows=%d want %d", len(rows), len(tt.want))
			}
			for i, w := range tt.want {
				if rows[i].Value != w {
					t.Fatalf("row %d value=%v want %v", i, rows[i].Value, w)
				}
			}
		})
	}

	exec := newExec(t, &upstreamRecorder{body: `[{"country":"CANADA","max_value":31.5,"min_value":-40.2}]`}, Options{})
	stats, err := exec.CountryStats(context.Background(), Query{Year: 2024, Element: "TMAX"})
	if err != nil {
		t.Fatalf("CountryStats: %v", err)
	}
	if stats[0].MaxValue != 31.5 || stats[0].MinValue != -40.2 {
		t.Fatalf("stats rescaled: %+v", stats[0])
	}
}

func TestRegionsAndStats_CarryDateRange(t *testing.T) {
	up := &upstreamRecorder{body: `[]`}
	exec := newExec(t, up, Options{})
	q := Query{Year: 2024, Element: "PRCP", Start: model.Date(2024, time.June, 10), End: model.Date(2024, time.August, 20)}

	if _, err := exec.Regions(context.Background(), q); err != nil {
		t.Fatalf("Regions: %v", err)
	}
	_, paths, got := up.snapshot()
	if paths[0] != "/api/regions/2024/PRCP" || got.Get("startDate") != "2024-06-10" || got.Get("endDate") != "2024-08-20" {
		t.Fatalf("path=%s query=%v", paths[0], got.Encode())
	}

	q.Start, q.End = time.Time{}, time.Time{}
	if _, err := exec.CountryStats(context.Background(), q); err != nil {
		t.Fatalf("CountryStats: %v", err)
	}
	_, paths, got = up.snapshot()
	if paths[1] != "/api/country-stats/2024/PRCP" || got.Has("startDate") || got.Has("endDate") {
		t.Fatalf("path=%s query=%v", paths[1], got.Encode())
	}
}

func TestYears_SortedDescending(t *testing.T) {
	up := &upstreamRecorder{body: `[2021,2024,2023]`}
	exec := newExec(t, up, Options{})
	years, err := exec.Years(context.Background())
	if err != nil {
		t.Fatalf("Years: %v", err)
	}
	if len(years) != 3 || years[0] != 2024 || years[2] != 2021 {
		t.Fatalf("years=%v", years)
	}
}

func TestUpstreamFailures_OpenCircuit(t *testing.T) {
	up := &upstreamRecorder{status: http.StatusInternalServerError, body: "boom"}
	exec := newExec(t, up, Options{BreakerFailures: 2, BreakerTimeout: time.Minute})
	ctx := context.Background()

	for range 2 {
		if _, err := exec.Unit(ctx, "TMAX"); !errors.Is(err, ErrUpstream) {
			t.Fatalf("err=%v want ErrUpstream", err)
		}
	}
	if _, err := exec.Unit(ctx, "TMAX"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err=%v want ErrCircuitOpen", err)
	}
	if calls, _, _ := up.snapshot(); calls != 2 {
		t.Fatalf("open circuit must not reach upstream, calls=%d", calls)
	}
}

func TestClientErrorsAndCancellation_DoNotTripBreaker(t *testing.T) {
	up := &upstreamRecorder{status: http.StatusNotFound, body: "no such year"}
	exec := newExec(t, up, Options{BreakerFailures: 1})

	for range 3 {
		if _, err := exec.Elements(context.Background(), 1700); !errors.Is(err, ErrUpstream) {
			t.Fatalf("err=%v want ErrUpstream", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exec.Elements(ctx, 2024); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	up.mu.Lock()
	up.status, up.body = http.StatusOK, `[{"code":"tmax","description":"Max temp","unit":"tenths of °C"}]`
	up.mu.Unlock()
	els, err := exec.Elements(context.Background(), 2024)
	if err != nil || len(els) != 1 || els[0].Code != "TMAX" {
		t.Fatalf("els=%v err=%v", els, err)
	}
}

func TestCache_SecondCallServedFromRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	store, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	up := &upstreamRecorder{source: "materialized", body: `[{"date":"2024-03-01","value":12,"station_count":1,"month":3,"day":1,"year":2024}]`}
	exec := newExec(t, up, Options{Cache: store, CacheTTL: time.Minute})
	q := Query{Year: 2024, Element: "PRCP"}

	var sources []model.DataSource
	notify := func(s model.DataSource) { sources = append(sources, s) }
	first, err := exec.Series(context.Background(), q, notify)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := exec.Series(context.Background(), q, notify)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if calls, _, _ := up.snapshot(); calls != 1 {
		t.Fatalf("upstream calls=%d want 1", calls)
	}
	if len(second) != 1 || second[0].Value != first[0].Value || second[0].Value != 12 {
		t.Fatalf("cached rows differ: %v vs %v", first, second)
	}
	if len(sources) != 2 || sources[0] != model.SourceMaterialized || sources[1] != model.SourceCache {
		t.Fatalf("sources=%v", sources)
	}

	if _, err := exec.Series(context.Background(), Query{Year: 2024, Element: "PRCP", Country: "CANADA"}, nil); err != nil {
		t.Fatalf("third: %v", err)
	}
	if calls, _, _ := up.snapshot(); calls != 2 {
		t.Fatalf("different filter must miss the cache, calls=%d", calls)
	}
}

func TestInvalidate_DropsOnlyThatYear(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	store, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	up := &upstreamRecorder{body: `[]`}
	exec := newExec(t, up, Options{Cache: store, CacheTTL: time.Minute})
	ctx := context.Background()

	for _, year := range []int{2023, 2024} {
		if _, err := exec.Regions(ctx, Query{Year: year, Element: "TMAX"}); err != nil {
			t.Fatalf("regions %d: %v", year, err)
		}
	}
	n, err := exec.Invalidate(ctx, 2024)
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if n != 1 {
		t.Fatalf("invalidated=%d want 1", n)
	}
	for _, year := range []int{2023, 2024} {
		if _, err := exec.Regions(ctx, Query{Year: year, Element: "TMAX"}); err != nil {
			t.Fatalf("regions %d: %v", year, err)
		}
	}
	if calls, _, _ := up.snapshot(); calls != 3 {
		t.Fatalf("upstream calls=%d want 3 (only 2024 refetched)", calls)
	}
}

func TestInvalidate_NoStoreIsNoop(t *testing.T) {
	exec := newExec(t, &upstreamRecorder{body: `[]`}, Options{})
	if n, err := exec.Invalidate(context.Background(), 2024); err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
