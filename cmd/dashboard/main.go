package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/cache/redisstore"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/config"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/executor"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/health"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/httpclient"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/observability"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/server"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/geomap"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/dashboard/resize"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/hitevents"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/logger"
	h3mapper "github.com/mohammed-shakir/noaa-weather-explorer/internal/mapper/h3"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/metrics"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/prefs"
	"github.com/mohammed-shakir/noaa-weather-explorer/internal/session"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg, cfgErr := config.Load()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "dashboard",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)
	if cfgErr != nil {
		appLog.Error("invalid configuration", "err", cfgErr)
		return 1
	}

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting dashboard",
		"addr", cfg.Addr,
		"version", Version,
		"query_service", cfg.QueryServiceURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]health.Check{}
	execOpts := executor.Options{
		SeriesLimit:        cfg.SeriesLimit,
		RawTenths:          cfg.QueryRawTenths,
		BreakerMaxRequests: cfg.BreakerMaxRequests,
		BreakerTimeout:     cfg.BreakerTimeout,
		CacheTTL:           cfg.QueryCacheTTL,
		CacheOpTimeout:     cfg.CacheOpTimeout,
	}
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			// the dashboard works without the shared cache
			appLog.Warn("query cache disabled", "redis", cfg.RedisAddr, "err", err)
		} else {
			defer func() { _ = rc.Close() }()
			execOpts.Cache = rc
			checks["redis"] = rc.Ping
		}
	}
	exec, err := executor.New(appLog, httpclient.NewOutbound(cfg.UpstreamTimeout), cfg.QueryServiceURL, execOpts)
	if err != nil {
		appLog.Error("failed to initialize query client", "err", err)
		return 1
	}

	if cfg.Refresh.Enabled && execOpts.Cache != nil {
		consumer := kafkaconsumer.New(kafkaconsumer.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Refresh.Topic,
			GroupID: cfg.Refresh.GroupID,
		}, appLog, exec)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Warn("refresh consumer exited", "err", err)
			}
		}()
	}

	names, err := geomap.LoadNames()
	if err != nil {
		appLog.Error("load boundary names", "err", err)
		return 1
	}
	atlas, err := geomap.LoadAtlasFiles(names, cfg.WorldGeoJSON, cfg.Admin1GeoJSON)
	if err != nil {
		appLog.Error("load boundaries", "err", err)
		return 1
	}
	renderer := geomap.NewRenderer(atlas, h3mapper.New(), geomap.Options{
		HexbinThreshold: cfg.HexbinThreshold,
		HexbinRes:       cfg.HexbinRes,
		MaxHexbins:      cfg.MaxHexbins,
	}, appLog)

	store, err := prefs.Open(ctx, cfg.PrefsDSN)
	if err != nil {
		appLog.Error("open preference store", "err", err)
		return 1
	}
	defer func() { _ = store.Close() }()
	checks["prefs"] = store.Ping

	var events dashboard.Events
	if cfg.Events.Enabled {
		pub, err := hitevents.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.Queue, appLog)
		if err != nil {
			appLog.Warn("interaction events disabled", "err", err)
		} else {
			defer func() {
				if err := pub.Close(); err != nil {
					appLog.Warn("close event publisher", "err", err)
				}
			}()
			events = pub
		}
	}

	sessions := session.NewManager(func(id, client string, bind dashboard.Binding) dashboard.Config {
		return dashboard.Config{
			Source:              exec,
			Map:                 renderer,
			Binding:             bind,
			Prefs:               store,
			Events:              events,
			Logger:              appLog,
			SessionID:           id,
			ClientID:            client,
			Debounce:            cfg.DebounceWindow,
			ResizeDebounce:      cfg.ResizeDebounce,
			ProgressDelay:       cfg.ProgressDelay,
			ChartSize:           resize.Size{Width: 960, Height: 500},
			MapSize:             resize.Size{Width: 960, Height: 500},
			BootstrapRetries:    cfg.BootstrapRetries,
			BootstrapMaxElapsed: cfg.BootstrapMaxElapsed,
		}
	}, session.Options{TTL: cfg.SessionTTL, Max: cfg.SessionMax}, appLog)
	defer sessions.Close()

	mp := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	}, nil)
	go func() {
		if err := mp.Serve(ctx, appLog); err != nil {
			appLog.Warn("metrics server exited", "err", err)
		}
	}()

	if err := server.Run(ctx, cfg, appLog, server.Handler(appLog, sessions, checks)); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
