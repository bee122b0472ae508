package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseJSONOverlaysDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "trackify.json", `{
		"probe": {"timeout": "10s"},
		"location": {"permission": "granted", "provider": "static", "latitude": 52.37, "longitude": 4.89},
		"scheduler": {"enabled": true, "start_on_boot": false}
	}`)
	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Probe.Timeout != "10s" || cfg.Probe.Backend != "http" {
		t.Fatalf("probe = %+v", cfg.Probe)
	}
	if cfg.Storage.Driver != "file" || cfg.Retention.MaxSamples != 2000 {
		t.Fatalf("defaults not kept: storage=%+v retention=%+v", cfg.Storage, cfg.Retention)
	}
	if cfg.Scheduler.StartOnBoot == nil || *cfg.Scheduler.StartOnBoot {
		t.Fatal("explicit false start_on_boot should be kept")
	}
	if cfg.Scheduler.StopOnTerminate != nil {
		t.Fatal("omitted stop_on_terminate should stay nil")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "trackify.yaml", `
logging:
  level: debug
  console: false
storage:
  driver: sqlite
  path: ./trackify.db
retention:
  max_age: 168h
  max_samples: 500
http:
  enabled: true
`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Retention.MaxAge != "168h" || cfg.Retention.MaxSamples != 500 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Addr != "127.0.0.1:8787" {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{name: "unknown field", file: "c.json", body: `{"telegram": {}}`, want: "unknown field"},
		{name: "trailing data", file: "c.json", body: `{} {}`, want: "trailing data"},
		{name: "bad backend", file: "c.json", body: `{"probe": {"backend": "ftp"}}`, want: "probe.backend"},
		{name: "bad duration", file: "c.json", body: `{"retention": {"max_age": "a month"}}`, want: "retention.max_age"},
		{name: "negative duration", file: "c.json", body: `{"probe": {"timeout": "-1s"}}`, want: "probe.timeout"},
		{name: "sqlite without path", file: "c.json", body: `{"storage": {"driver": "sqlite", "path": ""}}`, want: "storage.path"},
		{name: "bad timezone", file: "c.json", body: `{"summary": {"timezone": "Mars/Olympus"}}`, want: "summary.timezone"},
		{name: "bad background", file: "c.json", body: `{"scheduler": {"background": "sometimes"}}`, want: "scheduler.background"},
		{name: "latitude", file: "c.json", body: `{"location": {"latitude": 120}}`, want: "coordinates"},
		{name: "bad yaml", file: "c.yaml", body: "logging: [", want: "yaml"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, t.TempDir(), tc.file, tc.body)
			_, err := NewManager(p).Parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	if err := Validate(Default()); err != nil {
		t.Fatal(err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: time.Minute},
		{raw: "0s", want: time.Minute},
		{raw: " 45s ", want: 45 * time.Second},
		{raw: "30d", want: 30 * 24 * time.Hour},
		{raw: "1.5d", wantErr: true},
		{raw: "-5s", wantErr: true},
		{raw: "-2d", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseDurationOrDefault("x", tc.raw, time.Minute)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseDurationOrDefault(%q) = %v, %v", tc.raw, got, err)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Probe.Timeout = "5s"
	b.HTTP.Enabled = true
	b.Location.Latitude = 10

	changed, attrs, restart := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "http,location,probe" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if strings.Join(restart, ",") != "http" {
		t.Fatalf("restart = %v", restart)
	}

	if changed, _, _ := SummarizeConfigChange(a, Default()); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
}

func TestSubscribeDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	first, second := Default(), Default()
	second.Probe.Timeout = "1s"

	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatal("slow subscriber should receive the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "trackify.json", `{"probe": {"timeout": "10s"}}`)
	m := NewManager(p)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		// Rewrite until the watcher is up and sees a change.
		writeFile(t, dir, "trackify.json", `{"probe": {"timeout": "20s"}}`)
		select {
		case cfg := <-ch:
			if cfg.Probe.Timeout != "20s" {
				t.Fatalf("timeout = %s", cfg.Probe.Timeout)
			}
			if m.Get().Probe.Timeout != "20s" {
				t.Fatal("Get should return the committed config")
			}
			cancel()
			<-done
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}
