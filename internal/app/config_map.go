package app

import (
	"fmt"
	"strings"
	"time"

	"trackify/internal/config"
	"trackify/internal/httpapi"
	"trackify/internal/network/probe"
	"trackify/internal/network/samples"
	"trackify/internal/storage"
	"trackify/internal/task/scheduler"
	logx "trackify/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapProbeConfig(cfg *config.Config) (probe.HTTPConfig, probe.SpeedtestConfig, error) {
	pc := cfg.Probe
	timeout, err := config.ParseDurationOrDefault("probe.timeout", pc.Timeout, probe.DefaultTimeout)
	if err != nil {
		return probe.HTTPConfig{}, probe.SpeedtestConfig{}, err
	}
	ttl, err := config.ParseDurationField("probe.speedtest.server_ttl", pc.Speedtest.ServerTTL)
	if err != nil {
		return probe.HTTPConfig{}, probe.SpeedtestConfig{}, err
	}
	hc := probe.HTTPConfig{
		LatencyURL:        pc.LatencyURL,
		DownloadURL:       pc.DownloadURL,
		UploadURL:         pc.UploadURL,
		DownloadBytes:     pc.DownloadBytes,
		UploadBytes:       pc.UploadBytes,
		Timeout:           timeout,
		DisableHTTP2:      pc.DisableHTTP2,
		DisableKeepAlives: pc.DisableKeepAlives,
	}
	sc := probe.SpeedtestConfig{
		ServerCount:       pc.Speedtest.ServerCount,
		MaxConnections:    pc.Speedtest.MaxConnections,
		SavingMode:        pc.Speedtest.SavingMode,
		ServerTTL:         ttl,
		Timeout:           timeout,
		DisableHTTP2:      pc.DisableHTTP2,
		DisableKeepAlives: pc.DisableKeepAlives,
	}
	return hc, sc, nil
}

func buildSpeed(cfg *config.Config, log logx.Logger) (probe.Speed, error) {
	hc, sc, err := mapProbeConfig(cfg)
	if err != nil {
		return nil, err
	}
	return probe.NewSpeed(cfg.Probe.Backend, hc, sc, log)
}

// buildLocation returns the gated positioner and, for the geoip provider,
// the locator that owns the database handle.
func buildLocation(cfg *config.Config, log logx.Logger) (*probe.Location, *probe.GeoIPLocator, error) {
	lc := cfg.Location
	timeout, err := config.ParseDurationOrDefault("location.timeout", lc.Timeout, 10*time.Second)
	if err != nil {
		return nil, nil, err
	}
	loc := &probe.Location{
		Gate:    probe.StaticPermission(strings.EqualFold(strings.TrimSpace(lc.Permission), "granted")),
		Timeout: timeout,
		Log:     log,
	}
	var geo *probe.GeoIPLocator
	switch p := strings.ToLower(strings.TrimSpace(lc.Provider)); p {
	case "", "none":
	case "static":
		loc.Locator = probe.StaticLocator{Position: probe.Position{
			Latitude:       lc.Latitude,
			Longitude:      lc.Longitude,
			AccuracyMeters: lc.AccuracyMeters,
		}}
	case "geoip":
		geo = probe.NewGeoIPLocator(probe.GeoIPConfig{
			DBPath:      lc.GeoIPPath,
			IPEndpoints: lc.IPEndpoints,
			Timeout:     timeout,
		}, log)
		loc.Locator = geo
	default:
		return nil, nil, fmt.Errorf("unknown location.provider: %s", lc.Provider)
	}
	return loc, geo, nil
}

func mapRetention(cfg *config.Config) (samples.Retention, error) {
	age, err := config.ParseDurationOrDefault("retention.max_age", cfg.Retention.MaxAge, samples.DefaultRetention.MaxAge)
	if err != nil {
		return samples.Retention{}, err
	}
	n := cfg.Retention.MaxSamples
	if n <= 0 {
		n = samples.DefaultRetention.MaxSamples
	}
	return samples.Retention{MaxAge: age, MaxSamples: n}, nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, scheduler.Status, error) {
	sc := cfg.Scheduler
	status, err := scheduler.ParseStatus(sc.Background)
	if err != nil {
		return scheduler.Config{}, "", err
	}
	timeout, err := config.ParseDurationField("scheduler.timeout", sc.Timeout)
	if err != nil {
		return scheduler.Config{}, "", err
	}
	return scheduler.Config{
		Enabled:        sc.Enabled,
		Timezone:       sc.Timezone,
		HistorySize:    sc.HistorySize,
		DefaultTimeout: timeout,
		StartupSpread:  sc.StartupSpread,
	}, status, nil
}

// mapTaskOptions starts from scheduler.DefaultOptions and applies overrides.
func mapTaskOptions(cfg *config.Config) (scheduler.Options, error) {
	sc := cfg.Scheduler
	opts := scheduler.DefaultOptions()
	every, err := config.ParseDurationOrDefault("scheduler.interval", sc.Interval, scheduler.MinimumInterval)
	if err != nil {
		return opts, err
	}
	opts.MinimumInterval = every
	opts.Schedule = strings.TrimSpace(sc.Schedule)
	if sc.StopOnTerminate != nil {
		opts.StopOnTerminate = *sc.StopOnTerminate
	}
	if sc.StartOnBoot != nil {
		opts.StartOnBoot = *sc.StartOnBoot
	}
	return opts, nil
}

type httpSettings struct {
	server       httpapi.Config
	refreshEvery time.Duration
	refreshBurst int
}

func mapHTTPConfig(cfg *config.Config) (httpSettings, error) {
	hc := cfg.HTTP
	var out httpSettings
	var err error
	out.server.Addr = strings.TrimSpace(hc.Addr)
	if out.server.ReadTimeout, err = config.ParseDurationField("http.read_timeout", hc.ReadTimeout); err != nil {
		return out, err
	}
	if out.server.WriteTimeout, err = config.ParseDurationField("http.write_timeout", hc.WriteTimeout); err != nil {
		return out, err
	}
	if out.server.IdleTimeout, err = config.ParseDurationField("http.idle_timeout", hc.IdleTimeout); err != nil {
		return out, err
	}
	if out.refreshEvery, err = config.ParseDurationField("http.refresh_every", hc.RefreshEvery); err != nil {
		return out, err
	}
	out.refreshBurst = hc.RefreshBurst
	return out, nil
}

// checkMappable runs every mapper so a reload is rejected before commit.
func checkMappable(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapProbeConfig(cfg); err != nil {
		return err
	}
	if _, _, err := buildLocation(cfg, logx.Nop()); err != nil {
		return err
	}
	if _, err := mapRetention(cfg); err != nil {
		return err
	}
	if _, err := loadLocation(cfg.Summary.Timezone); err != nil {
		return err
	}
	if _, _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTaskOptions(cfg); err != nil {
		return err
	}
	_, err := mapHTTPConfig(cfg)
	return err
}
