package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks enum values and duration strings. It returns every problem
// found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	oneOf := func(path, v string, allowed ...string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return
		}
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", path, v, strings.Join(allowed, ", ")))
	}
	duration := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		check(err)
	}
	timezone := func(path, tz string) {
		if tz = strings.TrimSpace(tz); tz == "" {
			return
		}
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}

	oneOf("logging.level", cfg.Logging.Level, "trace", "debug", "info", "warn", "warning", "error")

	oneOf("storage.driver", cfg.Storage.Driver, "memory", "file", "sqlite", "sqlite3")
	duration("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); (d == "sqlite" || d == "sqlite3") && strings.TrimSpace(cfg.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path is required when storage.driver=sqlite"))
	}

	oneOf("probe.backend", cfg.Probe.Backend, "http", "speedtest")
	duration("probe.timeout", cfg.Probe.Timeout)
	duration("probe.speedtest.server_ttl", cfg.Probe.Speedtest.ServerTTL)
	if cfg.Probe.DownloadBytes < 0 || cfg.Probe.UploadBytes < 0 {
		errs = append(errs, errors.New("probe: download_bytes and upload_bytes must be >= 0"))
	}

	oneOf("location.permission", cfg.Location.Permission, "granted", "denied")
	oneOf("location.provider", cfg.Location.Provider, "static", "geoip", "none")
	duration("location.timeout", cfg.Location.Timeout)
	if cfg.Location.Latitude < -90 || cfg.Location.Latitude > 90 ||
		cfg.Location.Longitude < -180 || cfg.Location.Longitude > 180 {
		errs = append(errs, errors.New("location: coordinates out of range"))
	}

	duration("retention.max_age", cfg.Retention.MaxAge)
	if cfg.Retention.MaxSamples < 0 {
		errs = append(errs, errors.New("retention.max_samples must be >= 0"))
	}

	timezone("summary.timezone", cfg.Summary.Timezone)

	oneOf("scheduler.background", cfg.Scheduler.Background, "available", "restricted", "denied")
	timezone("scheduler.timezone", cfg.Scheduler.Timezone)
	duration("scheduler.interval", cfg.Scheduler.Interval)
	duration("scheduler.timeout", cfg.Scheduler.Timeout)

	duration("http.refresh_every", cfg.HTTP.RefreshEvery)
	duration("http.read_timeout", cfg.HTTP.ReadTimeout)
	duration("http.write_timeout", cfg.HTTP.WriteTimeout)
	duration("http.idle_timeout", cfg.HTTP.IdleTimeout)

	return errors.Join(errs...)
}
