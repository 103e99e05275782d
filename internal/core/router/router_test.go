package router

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/dashboardtest"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/session"
)

type testAPI struct {
	srv *httptest.Server
	src *dashboardtest.Source
	mgr *session.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIDebounce(t, 5*time.Millisecond)
}

func newTestAPIDebounce(t *testing.T, debounce time.Duration) *testAPI {
	t.Helper()
	atlas, err := dashboardtest.Atlas()
	if err != nil {
		t.Fatalf("atlas: %v", err)
	}
	src := dashboardtest.NewSource()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := session.NewManager(func(id, client string, bind dashboard.Binding) dashboard.Config {
		return dashboard.Config{
			Source: src, Atlas: atlas, Binding: bind, Logger: log,
			SessionID: id, ClientID: client,
			Debounce:          debounce,
			BootstrapInterval: time.Millisecond,
		}
	}, session.Options{}, log)
	r := chi.NewRouter()
	Mount(r, log, mgr)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		mgr.Close()
	})
	return &testAPI{srv: srv, src: src, mgr: mgr}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(HeaderClientID, "client-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func (a *testAPI) create(t *testing.T, query string) createResponse {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/sessions?wait=true", map[string]string{"query": query})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", resp.StatusCode, body)
	}
	var cr createResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return cr
}

func TestCreateSession_SeedsFromQuery(t *testing.T) {
	a := newTestAPI(t)
	cr := a.create(t, "year=2023&element=prcp&chartType=heatmap")
	if cr.ID == "" || cr.View.Chart == nil || cr.View.Chart.Mode != "heatmap" {
		t.Fatalf("resp=%+v", cr)
	}
	if !strings.Contains(cr.View.Query, "element=PRCP") {
		t.Fatalf("query=%s", cr.View.Query)
	}
	if cr.View.Chart.Rev == 0 {
		t.Fatalf("scene rev must be set")
	}
}

func TestUnknownSession_404(t *testing.T) {
	a := newTestAPI(t)
	resp, _ := a.do(t, http.MethodGet, "/api/sessions/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestFilters_ValidatesPayload(t *testing.T) {
	a := newTestAPI(t)
	cr := a.create(t, "")
	cases := []struct {
		name string
		body any
	}{
		{"bad chart type", map[string]any{"chart_type": "pie"}},
		{"year out of range", map[string]any{"year": 99}},
		{"unknown field", map[string]any{"colour": "red"}},
		{"element not alphanumeric", map[string]any{"element": "TM-AX"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := a.do(t, http.MethodPost, "/api/sessions/"+cr.ID+"/filters", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", resp.StatusCode, body)
			}
		})
	}
}

func TestFilters_AppliesAfterDebounce(t *testing.T) {
	a := newTestAPI(t)
	cr := a.create(t, "year=2024&element=TMAX")
	a.src.Reset()

	resp, body := a.do(t, http.MethodPost, "/api/sessions/"+cr.ID+"/filters", map[string]any{"element": "TMIN", "country": "CANADA"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(a.src.Calls("series")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	calls := a.src.Calls("series")
	if len(calls) != 1 || calls[0].Element != "TMIN" || calls[0].Country != "CANADA" {
		t.Fatalf("series calls=%+v", calls)
	}
}

func TestFilters_WaitRunsDebouncedRefetch(t *testing.T) {
	a := newTestAPIDebounce(t, time.Hour)
	cr := a.create(t, "year=2024&element=TMAX")
	a.src.Reset()

	resp, body := a.do(t, http.MethodPost, "/api/sessions/"+cr.ID+"/filters?wait=true", map[string]any{"element": "PRCP"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	calls := a.src.Calls("series")
	if len(calls) != 1 || calls[0].Element != "PRCP" {
		t.Fatalf("series calls=%+v", calls)
	}
	var v session.View
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(v.Query, "element=PRCP") || v.Chart == nil {
		t.Fatalf("view=%+v", v)
	}
	label := ""
	for _, m := range v.Chart.Marks {
		if m.ID == "y-label" {
			label = m.Text
		}
	}
	if label != "Precipitation (mm)" {
		t.Fatalf("y label=%q", label)
	}
}

func TestClick_StaleRevIsConflict(t *testing.T) {
	a := newTestAPI(t)
	cr := a.create(t, "year=2024&element=TMAX&country=CANADA")
	rev := cr.View.Map.Rev

	resp, body := a.do(t, http.MethodPost, "/api/sessions/"+cr.ID+"/click?wait=true", map[string]any{"view": "map", "rev": rev, "mark": "station-CA1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var v session.View
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(v.Query, "station=CA1") || !strings.Contains(v.Query, "country=CANADA") {
		t.Fatalf("query=%s", v.Query)
	}

	resp, _ = a.do(t, http.MethodPost, "/api/sessions/"+cr.ID+"/click", map[string]any{"view": "map", "rev": rev, "mark": "station-CA1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("click on redrawn scene: status=%d", resp.StatusCode)
	}
}

func TestTable_VisibilityAndSort(t *testing.T) {
	a := newTestAPI(t)
	cr := a.create(t, "year=2024&element=TMAX")
	base := "/api/sessions/" + cr.ID

	resp, body := a.do(t, http.MethodPost, base+"/table/visibility?wait=true", map[string]any{"visible": true})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	resp, body = a.do(t, http.MethodPost, base+"/table/sort", map[string]any{"column": "max_value"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var v session.View
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatal(err)
	}
	if !v.Table.Visible || len(v.Table.Rows) != 2 || v.Table.Rows[0].Country != "MEXICO" {
		t.Fatalf("table=%+v", v.Table)
	}

	resp, _ = a.do(t, http.MethodPost, base+"/table/sort", map[string]any{"column": "nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad column: status=%d", resp.StatusCode)
	}
	resp, _ = a.do(t, http.MethodPost, base+"/table/visibility", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing visible: status=%d", resp.StatusCode)
	}
}

func TestHover_ValidatesParams(t *testing.T) {
	a := newTestAPI(t)
	cr := a.create(t, "")
	resp, _ := a.do(t, http.MethodGet, "/api/sessions/"+cr.ID+"/hover?view=table&x=1&y=1", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	resp, body := a.do(t, http.MethodGet, "/api/sessions/"+cr.ID+"/hover?view=chart&x=-500&y=-500", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"tooltip":""`) {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
}

func TestDeleteSession(t *testing.T) {
	a := newTestAPI(t)
	cr := a.create(t, "")
	resp, _ := a.do(t, http.MethodDelete, "/api/sessions/"+cr.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	resp, _ = a.do(t, http.MethodGet, "/api/sessions/"+cr.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("after delete status=%d", resp.StatusCode)
	}
}
