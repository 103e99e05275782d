// Package server wires the HTTP surface of the dashboard service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/config"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/health"
	middleware "github.com/mohammed-shakir/noaa-weather-explorer/internal/core/middleware"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/router"
)

// Handler builds the routes: health checks, metrics and the session API.
func Handler(logger *slog.Logger, sessions router.Sessions, checks map[string]health.Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(checks, 2*time.Second))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Mount(r, logger, sessions)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// ?wait=true may hold a response for a first-time materialization
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
