package config

import (
	"reflect"
	"sort"
	"strings"

	logx "trackify/pkg/logx"
)

// restartSections cannot be applied to a running process.
var restartSections = map[string]bool{"storage": true, "summary": true, "http": true}

// SummarizeConfigChange returns the changed top-level sections, safe
// structured attrs for logging, and the subset of sections that only take
// effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Probe, newCfg.Probe) {
		changed = append(changed, "probe")
		attrs = append(attrs,
			logx.String("probe.backend", strings.TrimSpace(newCfg.Probe.Backend)),
			logx.String("probe.timeout", strings.TrimSpace(newCfg.Probe.Timeout)),
		)
	}

	// Coordinates are location data; log only the provider and permission.
	if !reflect.DeepEqual(oldCfg.Location, newCfg.Location) {
		changed = append(changed, "location")
		attrs = append(attrs,
			logx.String("location.permission", strings.TrimSpace(newCfg.Location.Permission)),
			logx.String("location.provider", strings.TrimSpace(newCfg.Location.Provider)),
		)
	}

	if oldCfg.Retention != newCfg.Retention {
		changed = append(changed, "retention")
		attrs = append(attrs,
			logx.String("retention.max_age", strings.TrimSpace(newCfg.Retention.MaxAge)),
			logx.Int("retention.max_samples", newCfg.Retention.MaxSamples),
		)
	}

	if oldCfg.Summary != newCfg.Summary {
		changed = append(changed, "summary")
		attrs = append(attrs, logx.String("summary.timezone", strings.TrimSpace(newCfg.Summary.Timezone)))
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.background", strings.TrimSpace(newCfg.Scheduler.Background)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Bool("scheduler.foreground_fallback", newCfg.Scheduler.ForegroundFallback),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
		)
	}

	sort.Strings(changed)
	var restart []string
	for _, s := range changed {
		if restartSections[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}
