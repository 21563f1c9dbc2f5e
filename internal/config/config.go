// Package config loads the Config struct every command shares, reading
// flags, environment variables, and an optional config file through
// viper with flags taking precedence, the way the teacher's own
// CLIConfig is assembled.
package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/secinto/httpobservatory/internal/shared/constants"
)

// Config is the whole of the runtime configuration the scanner core,
// cache, API server, and CLI share.
type Config struct {
	Cooldown        time.Duration
	CacheTimeForGet time.Duration
	MaxRedirects    int
	BodySizeCapKB   int64
	ProbeTimeout    time.Duration
	ScanWallClock   time.Duration

	BatchConcurrency int

	BaseURL         string
	PersistencePath string
	AuthToken       string
	APIRateLimit    float64 // requests per second, per client

	ListenAddr string
	LogPath    string
}

// Default returns the spec's published defaults.
func Default() Config {
	return Config{
		Cooldown:         constants.DefaultCooldown,
		CacheTimeForGet:  constants.DefaultCacheTimeForGet,
		MaxRedirects:     constants.DefaultMaxRedirects,
		BodySizeCapKB:    constants.RawBodyCaptureLimitBytes / 1024,
		ProbeTimeout:     constants.DefaultProbeTimeout,
		ScanWallClock:    constants.DefaultScanWallClock,
		BatchConcurrency: constants.DefaultBatchConcurrency,
		BaseURL:          "http://localhost:8080",
		PersistencePath:  "data/scans.json",
		APIRateLimit:     2,
		ListenAddr:       ":8080",
		LogPath:          "httpobservatory.log",
	}
}

// BindFlags registers every config-backed flag on flags and binds it
// into v, so CLI flags take precedence over env and file values per
// viper's own resolution order.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Duration("cooldown", constants.DefaultCooldown, "minimum interval between retrievals for the same site")
	flags.Duration("cache-time-for-get", constants.DefaultCacheTimeForGet, "freshness window for GET /analyze")
	flags.Int("max-redirects", constants.DefaultMaxRedirects, "maximum redirects the HTTPS probe follows")
	flags.Duration("probe-timeout", constants.DefaultProbeTimeout, "per-request timeout for each probe")
	flags.Duration("scan-wall-clock", constants.DefaultScanWallClock, "hard wall-clock cap for one scan")
	flags.Int("batch-concurrency", constants.DefaultBatchConcurrency, "in-flight scans per batch request")
	flags.String("base-url", "http://localhost:8080", "base URL used to construct details_url")
	flags.String("persistence-path", "data/scans.json", "path to the JSON scan-row store")
	flags.String("auth-token", "", "bearer token required for mutating API endpoints; empty disables auth")
	flags.Float64("api-rate-limit", 2, "per-client API requests per second")
	flags.String("listen-addr", ":8080", "address the API server listens on")
	flags.String("log-path", "httpobservatory.log", "rotated structured log file path")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("HTTPOBS")
	v.AutomaticEnv()
}

// FromViper reads every bound key out of v into a Config, falling back
// to Default()'s values for anything v has no opinion on.
func FromViper(v *viper.Viper) Config {
	cfg := Default()
	if v.IsSet("cooldown") {
		cfg.Cooldown = v.GetDuration("cooldown")
	}
	if v.IsSet("cache-time-for-get") {
		cfg.CacheTimeForGet = v.GetDuration("cache-time-for-get")
	}
	if v.IsSet("max-redirects") {
		cfg.MaxRedirects = v.GetInt("max-redirects")
	}
	if v.IsSet("probe-timeout") {
		cfg.ProbeTimeout = v.GetDuration("probe-timeout")
	}
	if v.IsSet("scan-wall-clock") {
		cfg.ScanWallClock = v.GetDuration("scan-wall-clock")
	}
	if v.IsSet("batch-concurrency") {
		cfg.BatchConcurrency = v.GetInt("batch-concurrency")
	}
	if v.IsSet("base-url") {
		cfg.BaseURL = v.GetString("base-url")
	}
	if v.IsSet("persistence-path") {
		cfg.PersistencePath = v.GetString("persistence-path")
	}
	if v.IsSet("auth-token") {
		cfg.AuthToken = v.GetString("auth-token")
	}
	if v.IsSet("api-rate-limit") {
		cfg.APIRateLimit = v.GetFloat64("api-rate-limit")
	}
	if v.IsSet("listen-addr") {
		cfg.ListenAddr = v.GetString("listen-addr")
	}
	if v.IsSet("log-path") {
		cfg.LogPath = v.GetString("log-path")
	}
	return cfg
}
