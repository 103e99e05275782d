package prefs

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStore_TableVisibility(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if _, found, err := s.TableVisible(ctx, "c1"); err != nil || found {
		t.Fatalf("fresh client: found=%v err=%v", found, err)
	}
	cases := []bool{true, false, true}
	for _, want := range cases {
		if err := s.SetTableVisible(ctx, "c1", want); err != nil {
			t.Fatalf("Set(%v): %v", want, err)
		}
		got, found, err := s.TableVisible(ctx, "c1")
		if err != nil || !found || got != want {
			t.Fatalf("after Set(%v): got=%v found=%v err=%v", want, got, found, err)
		}
	}
	if _, found, _ := s.TableVisible(ctx, "c2"); found {
		t.Fatalf("preferences must be per client")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetTableVisible(ctx, "c1", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()
	if v, found, err := s.TableVisible(ctx, "c1"); err != nil || !found || !v {
		t.Fatalf("after reopen: v=%v found=%v err=%v", v, found, err)
	}
}
