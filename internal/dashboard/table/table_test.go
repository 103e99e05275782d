package table

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

func stats() []model.CountryStat {
	return []model.CountryStat{
		{Country: "Canada", MaxValue: 31.2, MinValue: -40.1},
		{Country: "Mexico", MaxValue: 45.0, MinValue: -2.0},
		{Country: "Brazil", MaxValue: 41.5, MinValue: 3.3},
	}
}

func countries(rows []model.CountryStat) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Country
	}
	return out
}

func TestSortCycle_ThreeClicksRestoreOriginalOrder(t *testing.T) {
	v := New()
	v.SetRows(stats())
	orig := countries(v.Rows())

	if s := v.Click(ColMaxValue); s.Direction != Desc {
		t.Fatalf("first click=%s want desc", s.Direction)
	}
	if diff := cmp.Diff([]string{"Mexico", "Brazil", "Canada"}, countries(v.Rows())); diff != "" {
		t.Fatalf("desc order (-want +got):\n%s", diff)
	}
	if s := v.Click(ColMaxValue); s.Direction != Asc {
		t.Fatalf("second click=%s want asc", s.Direction)
	}
	if diff := cmp.Diff([]string{"Canada", "Brazil", "Mexico"}, countries(v.Rows())); diff != "" {
		t.Fatalf("asc order (-want +got):\n%s", diff)
	}
	if s := v.Click(ColMaxValue); s.Direction != None {
		t.Fatalf("third click=%s want none", s.Direction)
	}
	if diff := cmp.Diff(orig, countries(v.Rows())); diff != "" {
		t.Fatalf("order after three clicks (-want +got):\n%s", diff)
	}
}

func TestSortCycle_NewColumnStartsDesc(t *testing.T) {
	v := New()
	v.SetRows(stats())
	v.Click(ColMaxValue)
	v.Click(ColMaxValue)
	if s := v.Click(ColCountry); s.Column != ColCountry || s.Direction != Desc {
		t.Fatalf("new column sort=%+v", s)
	}
	if diff := cmp.Diff([]string{"Mexico", "Canada", "Brazil"}, countries(v.Rows())); diff != "" {
		t.Fatalf("country desc (-want +got):\n%s", diff)
	}
}

func TestSetRows_ReappliesSort(t *testing.T) {
	v := New()
	v.SetRows(stats())
	v.Click(ColMinValue)

	v.SetRows(append(stats(), model.CountryStat{Country: "Chile", MinValue: 10}))
	if got := countries(v.Rows()); got[0] != "Chile" {
		t.Fatalf("sort not re-applied after refresh: %v", got)
	}
	if v.Sort().Column != ColMinValue {
		t.Fatalf("sort state must survive a refresh")
	}
}

func TestHeadersAndError(t *testing.T) {
	v := New()
	v.SetUnit("°C")
	v.Click(ColMaxValue)
	hs := v.Headers()
	if hs[1].Title != "Max Value (°C)" || hs[1].Direction != Desc || hs[0].Direction != None {
		t.Fatalf("headers=%+v", hs[:2])
	}

	v.SetRows(stats())
	v.SetError(errors.New("boom"))
	snap := v.Snapshot(true)
	if len(snap.Rows) != 0 || snap.Error == "" {
		t.Fatalf("error must clear rows: %+v", snap)
	}
	if _, err := ParseColumn("nope"); err == nil {
		t.Fatalf("expected unknown column error")
	}
}
