// Package session keeps the live dashboard sessions of the headless API. Each
// session owns one controller; idle sessions expire and are closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/logger"
)

var ErrNotFound = errors.New("session: not found")

type Session struct {
	ID      string
	Client  string
	Created time.Time

	Controller *dashboard.Controller
	View       *Recorder
}

// Factory fills in the per-session parts of a controller config.
type Factory func(id, client string, bind dashboard.Binding) dashboard.Config

type Options struct {
	TTL time.Duration
	Max int
}

type Manager struct {
	cache   *expirable.LRU[string, *Session]
	factory Factory
	log     *slog.Logger
	active  atomic.Int64
}

func NewManager(factory Factory, o Options, log *slog.Logger) *Manager {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Minute
	}
	if o.Max <= 0 {
		o.Max = 1000
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{factory: factory, log: log}
	m.cache = expirable.NewLRU(o.Max, m.evicted, o.TTL)
	return m
}

// evicted runs under the cache lock and must not call back into the cache.
func (m *Manager) evicted(id string, s *Session) {
	s.Controller.Close()
	observability.SetSessionsActive(int(m.active.Add(-1)))
	m.log.Info("session closed", "session_id", id)
}

// Create starts a session seeded from the URL query. The session is stored
// even if the bootstrap failed so the client can read the failure message.
func (m *Manager) Create(ctx context.Context, client string, seed url.Values) (*Session, error) {
	id := logger.NewID()
	rec := &Recorder{}
	c, err := dashboard.New(m.factory(id, client, rec))
	if err != nil {
		return nil, fmt.Errorf("session: new controller: %w", err)
	}
	s := &Session{ID: id, Client: client, Created: time.Now().UTC(), Controller: c, View: rec}
	m.cache.Add(id, s)
	observability.SetSessionsActive(int(m.active.Add(1)))

	ctx = logger.WithSession(ctx, id)
	if err := c.Start(ctx, seed); err != nil {
		m.log.WarnContext(ctx, "session start failed", "err", err)
		return s, err
	}
	m.log.InfoContext(ctx, "session started", "client", client)
	return s, nil
}

// Get returns a live session and restarts its idle timer.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	m.cache.Add(id, s)
	return s, nil
}

func (m *Manager) Delete(id string) bool { return m.cache.Remove(id) }

func (m *Manager) Len() int { return m.cache.Len() }

// Close closes every session.
func (m *Manager) Close() { m.cache.Purge() }
