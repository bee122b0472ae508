// Package monitor runs probe-and-store cycles and serves the cached results.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackify/internal/metrics"
	"trackify/internal/network/classify"
	"trackify/internal/network/probe"
	"trackify/internal/network/samples"
	"trackify/internal/network/summary"
	"trackify/internal/task/scheduler"
	logx "trackify/pkg/logx"
)

// ErrCycleInFlight is returned when a cycle is requested while another one
// is still running.
var ErrCycleInFlight = errors.New("monitor: cycle already in flight")

// Monitor owns the measurement pipeline.
type Monitor struct {
	speed    probe.Speed
	host     probe.Host
	position probe.Positioner
	store    *samples.Store

	metrics *metrics.Collector
	log     logx.Logger
	loc     *time.Location
	now     func() time.Time
	newID   func() string

	inflight sync.Mutex
}

type Option func(*Monitor)

func WithLogger(log logx.Logger) Option { return func(m *Monitor) { m.log = log } }

func WithMetrics(c *metrics.Collector) Option { return func(m *Monitor) { m.metrics = c } }

// WithLocation sets the time zone used to decide which samples are "today".
func WithLocation(loc *time.Location) Option {
	return func(m *Monitor) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func New(speed probe.Speed, host probe.Host, position probe.Positioner, store *samples.Store, opts ...Option) *Monitor {
	m := &Monitor{
		speed:    speed,
		host:     host,
		position: position,
		store:    store,
		loc:      time.Local,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	m.log = m.log.With(logx.String("comp", "monitor"))
	return m
}

// CurrentNetworkInfo runs one full cycle: connection, signal, location,
// download, upload and latency probes, then classification and a single
// read-modify-write of the stored record. It returns the new snapshot.
//
// Probe failures are folded into the snapshot as unknown values; only a
// storage failure is returned as an error.
func (m *Monitor) CurrentNetworkInfo(ctx context.Context) (*samples.Snapshot, error) {
	if !m.inflight.TryLock() {
		m.metrics.ObserveCycle(0, metrics.OutcomeRejected)
		m.log.Debug("cycle rejected, another is in flight")
		return nil, ErrCycleInFlight
	}
	defer m.inflight.Unlock()

	start := time.Now()
	id := m.newID()
	log := m.log.With(logx.String("cycle", id))

	conn := m.host.Connection(ctx, nil)
	signal := m.host.Signal(ctx)
	location := probe.LocationResult{Denied: true}
	if m.position != nil {
		location = m.position.Locate(ctx)
	}
	down := m.speed.Download(ctx)
	up := m.speed.Upload(ctx)
	lat := m.speed.Latency(ctx)

	reachable := lat.OK
	conn.IsInternetReachable = &reachable

	m.countFailures(signal, location, down, up, lat)

	ts := m.now()
	sample := samples.Sample{
		Timestamp:    ts.UnixMilli(),
		DownloadMbps: down.Value(),
		UploadMbps:   up.Value(),
		LatencyMs:    lat.Millis(),
		Location:     location.Position,
	}

	snap, err := m.store.Update(ctx, func(prev *samples.Snapshot) (*samples.Snapshot, error) {
		next := samples.Empty()
		if prev != nil {
			next.DailySummary = prev.DailySummary
		}
		next.CycleID = id
		next.ConnectionType = conn.Type
		next.Interface = conn.Interface
		next.IsConnected = conn.IsConnected
		next.IsInternetReachable = conn.IsInternetReachable
		next.SignalStrengthDbm = signal.Value()
		next.SignalStatus = classify.Signal(signal.Value())
		next.DownloadMbps = sample.DownloadMbps
		next.DownloadStatus = classify.ThroughputOf(sample.DownloadMbps)
		next.UploadMbps = sample.UploadMbps
		next.UploadStatus = classify.ThroughputOf(sample.UploadMbps)
		next.LatencyMs = sample.LatencyMs
		next.LatencyStatus = classify.LatencyOf(sample.LatencyMs)
		next.Location = sample.Location
		next.DailySummary = append(next.DailySummary, sample)
		return next, nil
	})
	elapsed := time.Since(start)
	if err != nil {
		m.metrics.ObserveCycle(elapsed, metrics.OutcomeFailed)
		log.Error("cycle store failed", logx.Duration("elapsed", elapsed), logx.Err(err))
		return nil, err
	}

	m.metrics.SetLast(snap.DownloadMbps, snap.UploadMbps, snap.LatencyMs, snap.SignalStrengthDbm)
	m.metrics.ObserveCycle(elapsed, metrics.OutcomeOK)
	log.Info("cycle complete",
		logx.String("connection", snap.ConnectionType),
		logx.String("download", snap.DownloadStatus.String()),
		logx.String("upload", snap.UploadStatus.String()),
		logx.String("latency", snap.LatencyStatus.String()),
		logx.Int("samples", len(snap.DailySummary)),
		logx.Duration("elapsed", elapsed),
	)
	return snap, nil
}

func (m *Monitor) countFailures(signal probe.SignalResult, loc probe.LocationResult, down, up probe.ThroughputResult, lat probe.LatencyResult) {
	if !signal.Available {
		m.metrics.ProbeFailed("signal")
	}
	if !loc.Denied && loc.Position == nil {
		m.metrics.ProbeFailed("location")
	}
	if !down.OK {
		m.metrics.ProbeFailed("download")
		m.log.Warn("download probe failed", logx.Err(down.Err))
	}
	if !up.OK {
		m.metrics.ProbeFailed("upload")
		m.log.Warn("upload probe failed", logx.Err(up.Err))
	}
	if !lat.OK {
		m.metrics.ProbeFailed("latency")
		m.log.Warn("latency probe failed", logx.Err(lat.Err))
	}
}

// CachedData returns the stored snapshot, or nil when there is none. A
// corrupt record is logged and reported as nil.
func (m *Monitor) CachedData(ctx context.Context) (*samples.Snapshot, error) {
	snap, err := m.store.ReadSnapshot(ctx)
	if errors.Is(err, samples.ErrCorruptRecord) {
		m.log.Warn("cached record is corrupt", logx.Err(err))
		return nil, nil
	}
	return snap, err
}

// NetworkStats is CachedData for pollers that cannot handle errors.
func (m *Monitor) NetworkStats(ctx context.Context) *samples.Snapshot {
	snap, err := m.CachedData(ctx)
	if err != nil {
		m.log.Warn("read cached stats failed", logx.Err(err))
		return nil
	}
	return snap
}

// DailySummary computes today's aggregate from the cached record.
func (m *Monitor) DailySummary(ctx context.Context) (summary.DailyAggregate, bool) {
	return summary.ComputeDaily(m.NetworkStats(ctx), m.now(), m.loc)
}

// LogDailySummary computes today's aggregate and logs it.
func (m *Monitor) LogDailySummary(ctx context.Context) (summary.DailyAggregate, bool) {
	agg, ok := m.DailySummary(ctx)
	if !ok {
		m.log.Info("no network data for today", logx.String("date", agg.Date))
		return agg, false
	}
	fields := []logx.Field{
		logx.String("date", agg.Date),
		logx.Int("samples", agg.SampleCount),
	}
	if agg.AvgDownloadMbps != nil {
		fields = append(fields, logx.Float64("avg_download_mbps", *agg.AvgDownloadMbps))
	}
	if agg.AvgUploadMbps != nil {
		fields = append(fields, logx.Float64("avg_upload_mbps", *agg.AvgUploadMbps))
	}
	if agg.AvgLatencyMs != nil {
		fields = append(fields, logx.Float64("avg_latency_ms", *agg.AvgLatencyMs))
	}
	m.log.Info("daily network summary", fields...)
	return agg, true
}

// Stats summarizes the samples of the trailing window.
func (m *Monitor) Stats(ctx context.Context, window time.Duration, label string) summary.Stats {
	var in []samples.Sample
	if snap := m.NetworkStats(ctx); snap != nil {
		in = snap.DailySummary
	}
	return summary.ComputeStats(in, m.now().Add(-window), label)
}

// Chart buckets the samples inside period's window.
func (m *Monitor) Chart(ctx context.Context, metric summary.Metric, period summary.Period) summary.ChartData {
	var in []samples.Sample
	if snap := m.NetworkStats(ctx); snap != nil {
		cutoff := m.now().Add(-period.Window()).UnixMilli()
		for _, s := range snap.DailySummary {
			if s.Timestamp >= cutoff {
				in = append(in, s)
			}
		}
	}
	return summary.Chart(in, metric, period, m.loc)
}

// ConnectionType reports the current connection type without running the
// throughput probes.
func (m *Monitor) ConnectionType(ctx context.Context) string {
	return m.host.Connection(ctx, nil).Type
}

// RunCycle is the scheduled action: one cycle followed by the daily summary.
// A cycle already in flight turns the run into a skip.
func (m *Monitor) RunCycle(ctx context.Context) error {
	if _, err := m.CurrentNetworkInfo(ctx); err != nil {
		if errors.Is(err, ErrCycleInFlight) {
			return fmt.Errorf("%w: %w", scheduler.ErrSkipped, err)
		}
		return err
	}
	m.LogDailySummary(ctx)
	return nil
}
