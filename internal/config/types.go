package config

// Config is the on-disk configuration. JSON and YAML are both accepted; YAML
// is coerced to JSON and decoded with unknown fields rejected.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "720h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Probe     ProbeConfig     `json:"probe"`
	Location  LocationConfig  `json:"location"`
	Retention RetentionConfig `json:"retention"`
	Summary   SummaryConfig   `json:"summary"`
	Scheduler SchedulerConfig `json:"scheduler"`
	HTTP      HTTPConfig      `json:"http"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the key-value backend holding the sample record and
// the scheduler registrations.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./trackify.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Key overrides the record key (default "network_stats_cache").
	Key string `json:"key,omitempty"`
}

// ProbeConfig controls the measurement probes.
//
// Backend values:
//   - "http" (default): plain HTTP requests against the configured URLs
//   - "speedtest": nearest speedtest.net server
type ProbeConfig struct {
	Backend string `json:"backend"`
	// Timeout bounds each individual probe. Default "30s".
	Timeout string `json:"timeout,omitempty"`

	LatencyURL    string `json:"latency_url,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	UploadURL     string `json:"upload_url,omitempty"`
	DownloadBytes int64  `json:"download_bytes,omitempty"`
	UploadBytes   int    `json:"upload_bytes,omitempty"`

	// RouteProbe is the address dialed (UDP, no traffic) to find the
	// default interface.
	RouteProbe string `json:"route_probe,omitempty"`

	DisableHTTP2      bool `json:"disable_http2,omitempty"`
	DisableKeepAlives bool `json:"disable_keepalives,omitempty"`

	Speedtest SpeedtestConfig `json:"speedtest"`
}

type SpeedtestConfig struct {
	ServerCount    int    `json:"server_count,omitempty"`
	MaxConnections int    `json:"max_connections,omitempty"`
	SavingMode     bool   `json:"saving_mode,omitempty"`
	ServerTTL      string `json:"server_ttl,omitempty"`
}

// LocationConfig gates and configures the location probe.
//
// Permission is "granted" or "denied" (default). Provider is "static",
// "geoip" or "none".
type LocationConfig struct {
	Permission string `json:"permission"`
	Provider   string `json:"provider"`

	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	AccuracyMeters float64 `json:"accuracy_meters,omitempty"`

	GeoIPPath   string   `json:"geoip_path,omitempty"`
	IPEndpoints []string `json:"ip_endpoints,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
}

// RetentionConfig bounds the sample history. Zero values use the defaults
// (30 days, 2000 samples).
type RetentionConfig struct {
	MaxAge     string `json:"max_age,omitempty"`
	MaxSamples int    `json:"max_samples,omitempty"`
}

// SummaryConfig controls how "today" is computed.
type SummaryConfig struct {
	// Timezone is an IANA name; empty means Local.
	Timezone string `json:"timezone,omitempty"`
}

// SchedulerConfig controls the background measurement task.
//
// Background is the execution policy: "available" (default), "restricted"
// or "denied".
type SchedulerConfig struct {
	Enabled    bool   `json:"enabled"`
	Background string `json:"background,omitempty"`
	Timezone   string `json:"timezone,omitempty"`

	// Interval is the minimum time between runs; clamped to at least 5m.
	Interval string `json:"interval,omitempty"`
	// Schedule optionally replaces Interval with a cron expression.
	Schedule string `json:"schedule,omitempty"`

	// Pointers distinguish "omitted" from an explicit false.
	StopOnTerminate *bool `json:"stop_on_terminate,omitempty"`
	StartOnBoot     *bool `json:"start_on_boot,omitempty"`

	Timeout       string `json:"timeout,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`
	StartupSpread bool   `json:"startup_spread,omitempty"`

	// ForegroundFallback polls in-process at Interval while the background
	// policy is restricted or denied.
	ForegroundFallback bool `json:"foreground_fallback,omitempty"`
}

// HTTPConfig controls the optional status server.
//
// Prefer a loopback address; the server has no authentication.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8787"

	// RefreshEvery is the minimum spacing of POST /api/v1/network/refresh
	// calls; RefreshBurst allows short bursts above it.
	RefreshEvery string `json:"refresh_every,omitempty"`
	RefreshBurst int    `json:"refresh_burst,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}
