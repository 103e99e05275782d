// Package prefs persists per-client dashboard preferences in SQLite.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS client_prefs (
	client_id     TEXT PRIMARY KEY,
	table_visible INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
)`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and migrates) the store at dsn. An empty dsn or ":memory:"
// keeps everything in memory.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("prefs: open %q: %w", dsn, err)
	}
	// an in-memory database lives on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// TableVisible returns the stored table visibility for client. found is false
// when the client has no stored preference.
func (s *Store) TableVisible(ctx context.Context, client string) (visible, found bool, err error) {
	var v int
	err = s.db.QueryRowContext(ctx, `SELECT table_visible FROM client_prefs WHERE client_id = ?`, client).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, false, nil
	case err != nil:
		return false, false, fmt.Errorf("prefs: read %s: %w", client, err)
	}
	return v != 0, true, nil
}

func (s *Store) SetTableVisible(ctx context.Context, client string, visible bool) error {
	v := 0
	if visible {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO client_prefs (client_id, table_visible, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET table_visible = excluded.table_visible, updated_at = excluded.updated_at`,
		client, v, s.now().Unix())
	if err != nil {
		return fmt.Errorf("prefs: write %s: %w", client, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
