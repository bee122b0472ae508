package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trackify/internal/config"
	"trackify/internal/network/probe"
	"trackify/internal/network/samples"
	"trackify/internal/task/scheduler"
	logx "trackify/pkg/logx"
)

func boolPtr(b bool) *bool { return &b }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackify.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const testConfig = `{
  "logging": {"level": "error", "console": false},
  "storage": {"driver": "memory"},
  "scheduler": {"enabled": true, "start_on_boot": false},
  "http": {"enabled": false}
}`

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      config.StorageConfig
		driver  string
		busy    time.Duration
		wantErr bool
	}{
		{name: "empty is memory", in: config.StorageConfig{}, driver: "memory"},
		{name: "file", in: config.StorageConfig{Driver: "File", Path: "x.json"}, driver: "file"},
		{name: "sqlite default busy", in: config.StorageConfig{Driver: "sqlite", Path: "x.db"}, driver: "sqlite", busy: time.Second},
		{name: "sqlite busy", in: config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "3s"}, driver: "sqlite", busy: 3 * time.Second},
		{name: "sqlite without path", in: config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", in: config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage = tt.in
			got, err := mapStorageConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Driver != tt.driver || got.BusyTimeout != tt.busy {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestMapTaskOptions(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	opts, err := mapTaskOptions(cfg)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	def := scheduler.DefaultOptions()
	if opts.MinimumInterval != 5*time.Minute || opts.StartOnBoot != def.StartOnBoot || opts.StopOnTerminate != def.StopOnTerminate {
		t.Fatalf("defaults: %+v", opts)
	}

	cfg.Scheduler.Interval = "15m"
	cfg.Scheduler.Schedule = " 0 * * * * "
	cfg.Scheduler.StartOnBoot = boolPtr(false)
	cfg.Scheduler.StopOnTerminate = boolPtr(true)
	opts, err = mapTaskOptions(cfg)
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if opts.MinimumInterval != 15*time.Minute || opts.Schedule != "0 * * * *" || opts.StartOnBoot || !opts.StopOnTerminate {
		t.Fatalf("override: %+v", opts)
	}

	cfg.Scheduler.Interval = "soon"
	if _, err := mapTaskOptions(cfg); err == nil {
		t.Fatal("expected error for bad interval")
	}
}

func TestMapRetention(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Retention = config.RetentionConfig{}
	got, err := mapRetention(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got != samples.DefaultRetention {
		t.Fatalf("got %+v want defaults", got)
	}
	cfg.Retention = config.RetentionConfig{MaxAge: "48h", MaxSamples: 10}
	got, err = mapRetention(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxAge != 48*time.Hour || got.MaxSamples != 10 {
		t.Fatalf("got %+v", got)
	}
}

func TestBuildLocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := config.Default()
	loc, geo, err := buildLocation(cfg, logx.Nop())
	if err != nil || geo != nil {
		t.Fatalf("default: geo=%v err=%v", geo, err)
	}
	if res := loc.Locate(ctx); !res.Denied {
		t.Fatalf("default permission should deny, got %+v", res)
	}

	cfg.Location = config.LocationConfig{Permission: "granted", Provider: "static", Latitude: 1.5, Longitude: -2.5}
	loc, _, err = buildLocation(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	res := loc.Locate(ctx)
	if res.Denied || res.Position == nil || res.Position.Latitude != 1.5 || res.Position.Longitude != -2.5 {
		t.Fatalf("static: %+v", res)
	}

	cfg.Location.Provider = "gps"
	if _, _, err := buildLocation(cfg, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCheckMappableRejectsBadHTTP(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.HTTP.ReadTimeout = "forever"
	if err := checkMappable(cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestAppStartRegistersTask(t *testing.T) {
	path := writeConfig(t, testConfig)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.Scheduler().IsRegistered(TaskName) {
		t.Fatal("task not registered after Start")
	}
	if snap, err := a.Monitor().CachedData(ctx); err != nil || snap != nil {
		t.Fatalf("fresh store: snap=%v err=%v", snap, err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopCommandEnd); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Stop")
	}
}

func TestApplySchedulerPolicy(t *testing.T) {
	path := writeConfig(t, testConfig)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(c, StopCommandEnd)
	})

	prev := a.cfgm.Get()
	denied := *prev
	denied.Scheduler.Background = "denied"
	a.apply(ctx, prev, &denied)
	if a.Scheduler().IsRegistered(TaskName) {
		t.Fatal("task still registered after policy denied")
	}

	allowed := denied
	allowed.Scheduler.Background = "available"
	allowed.Scheduler.Interval = "10m"
	a.apply(ctx, &denied, &allowed)
	if !a.Scheduler().IsRegistered(TaskName) {
		t.Fatal("task not registered after policy allowed")
	}

	off := allowed
	off.Scheduler.Enabled = false
	a.apply(ctx, &allowed, &off)
	if got := a.Scheduler().Snapshot(ctx); got.Started {
		t.Fatalf("scheduler still running: %+v", got)
	}
}

type quickSpeed struct{}

func (quickSpeed) Latency(context.Context) probe.LatencyResult {
	return probe.LatencyResult{Latency: 20 * time.Millisecond, OK: true}
}
func (quickSpeed) Download(context.Context) probe.ThroughputResult {
	return probe.ThroughputResult{Mbps: 40, OK: true}
}
func (quickSpeed) Upload(context.Context) probe.ThroughputResult {
	return probe.ThroughputResult{Mbps: 8, OK: true}
}

func TestForegroundFallback(t *testing.T) {
	path := writeConfig(t, `{
  "logging": {"level": "error", "console": false},
  "storage": {"driver": "memory"},
  "scheduler": {"enabled": true, "background": "denied", "foreground_fallback": true, "start_on_boot": false},
  "http": {"enabled": false}
}`)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.speed.set(quickSpeed{})
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(c, StopCommandEnd)
	})

	if a.Scheduler().IsRegistered(TaskName) {
		t.Fatal("denied policy must not register")
	}
	if !a.fg.running() {
		t.Fatal("foreground polling not started")
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, err := a.Monitor().CachedData(ctx)
		if err == nil && snap != nil && len(snap.DailySummary) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("foreground poll produced no sample")
		}
		time.Sleep(10 * time.Millisecond)
	}

	prev := a.cfgm.Get()
	allowed := *prev
	allowed.Scheduler.Background = "available"
	a.apply(ctx, prev, &allowed)
	if !a.Scheduler().IsRegistered(TaskName) {
		t.Fatal("task not registered once allowed")
	}
	if a.fg.running() {
		t.Fatal("foreground polling should stop once registered")
	}

	noFallback := allowed
	noFallback.Scheduler.Background = "restricted"
	noFallback.Scheduler.ForegroundFallback = false
	a.apply(ctx, &allowed, &noFallback)
	if a.fg.running() {
		t.Fatal("polling started without the fallback flag")
	}
}

func TestApplyRetention(t *testing.T) {
	path := writeConfig(t, testConfig)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	ctx := context.Background()

	now := time.Now()
	for i := range 5 {
		if err := a.store.AppendSample(ctx, samples.Sample{Timestamp: now.Add(time.Duration(i) * time.Second).UnixMilli()}); err != nil {
			t.Fatal(err)
		}
	}

	prev := a.cfgm.Get()
	next := *prev
	next.Retention = config.RetentionConfig{MaxAge: "720h", MaxSamples: 2}
	a.apply(ctx, prev, &next)

	if err := a.store.AppendSample(ctx, samples.Sample{Timestamp: now.Add(10 * time.Second).UnixMilli()}); err != nil {
		t.Fatal(err)
	}
	snap, err := a.store.ReadSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.DailySummary) != 2 {
		t.Fatalf("samples=%d want 2", len(snap.DailySummary))
	}
}
