// Package config reads the dashboard service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type EventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	Queue   int
}

// RefreshCfg configures the dataset refresh consumer that invalidates the
// shared query cache. It shares KAFKA_BROKERS with the event publisher.
type RefreshCfg struct {
	Enabled bool
	Topic   string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	QueryServiceURL    string
	UpstreamTimeout    time.Duration
	SeriesLimit        int
	QueryRawTenths     bool
	BreakerMaxRequests uint32
	BreakerTimeout     time.Duration

	DebounceWindow      time.Duration
	ResizeDebounce      time.Duration
	ProgressDelay       time.Duration
	BootstrapRetries    uint64
	BootstrapMaxElapsed time.Duration

	// RedisAddr empty disables the shared query cache.
	RedisAddr      string
	QueryCacheTTL  time.Duration
	CacheOpTimeout time.Duration

	PrefsDSN   string
	SessionTTL time.Duration
	SessionMax int

	WorldGeoJSON    string
	Admin1GeoJSON   string
	HexbinThreshold int
	HexbinRes       int
	MaxHexbins      int

	Events  EventsCfg
	Refresh RefreshCfg
	Metrics MetricsCfg
}

// Load reads an optional .env file (or the file named by ENV_FILE) and then
// the environment. Variables already set win over the file.
func Load() (Config, error) {
	path := getenv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

func FromEnv() Config {
	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		QueryServiceURL:    getenv("QUERY_SERVICE_URL", "http://localhost:8080"),
		UpstreamTimeout:    getduration("UPSTREAM_TIMEOUT", 90*time.Second),
		SeriesLimit:        getint("SERIES_LIMIT", 5000),
		QueryRawTenths:     getbool("QUERY_RAW_TENTHS", false),
		BreakerMaxRequests: uint32(max(getint("BREAKER_MAX_REQUESTS", 1), 1)),
		BreakerTimeout:     getduration("BREAKER_TIMEOUT", 30*time.Second),

		DebounceWindow:      getduration("DEBOUNCE_WINDOW", 150*time.Millisecond),
		ResizeDebounce:      getduration("RESIZE_DEBOUNCE", 200*time.Millisecond),
		ProgressDelay:       getduration("PROGRESS_DELAY", 300*time.Millisecond),
		BootstrapRetries:    getuint64("BOOTSTRAP_RETRIES", 3),
		BootstrapMaxElapsed: getduration("BOOTSTRAP_MAX_ELAPSED", 5*time.Second),

		RedisAddr:      getenv("REDIS_ADDR", ""),
		QueryCacheTTL:  getduration("QUERY_CACHE_TTL", 10*time.Minute),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		PrefsDSN:   getenv("PREFS_DSN", "file:prefs.db"),
		SessionTTL: getduration("SESSION_TTL", 30*time.Minute),
		SessionMax: getint("SESSION_MAX", 1000),

		WorldGeoJSON:    getenv("WORLD_GEOJSON", "data/world.geojson"),
		Admin1GeoJSON:   getenv("ADMIN1_GEOJSON", ""),
		HexbinThreshold: getint("HEXBIN_THRESHOLD", 2000),
		HexbinRes:       getint("HEXBIN_RES", 4),
		MaxHexbins:      getint("MAX_HEXBINS", 1500),

		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("EVENTS_TOPIC", "dashboard-events"),
			Queue:   getint("EVENTS_QUEUE", 1024),
		},
		Refresh: RefreshCfg{
			Enabled: getbool("REFRESH_ENABLED", false),
			Topic:   getenv("REFRESH_TOPIC", "dataset-refresh"),
			GroupID: getenv("REFRESH_GROUP_ID", "dashboard-cache-invalidator"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9091"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.QueryServiceURL)
	if err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("QUERY_SERVICE_URL must be an absolute URL, got %q", c.QueryServiceURL))
	}
	if c.SessionMax <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX must be positive, got %d", c.SessionMax))
	}
	if c.HexbinRes < 0 || c.HexbinRes > 15 {
		errs = append(errs, fmt.Errorf("HEXBIN_RES must be in [0,15], got %d", c.HexbinRes))
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		errs = append(errs, errors.New("EVENTS_ENABLED requires KAFKA_BROKERS"))
	}
	if c.Refresh.Enabled && len(c.Events.Brokers) == 0 {
		errs = append(errs, errors.New("REFRESH_ENABLED requires KAFKA_BROKERS"))
	}
	if c.Refresh.Enabled && c.RedisAddr == "" {
		errs = append(errs, errors.New("REFRESH_ENABLED requires REDIS_ADDR"))
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("METRICS_PATH must start with /, got %q", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getuint64(k string, def uint64) uint64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// splitList parses "a:9092, b:9092" into its non-empty items.
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
