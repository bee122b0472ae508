// Package metrics exposes Prometheus collectors for measurement cycles and
// scheduled task runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cycle outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Collector holds every trackify metric. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	CycleDuration prometheus.Histogram
	Cycles        *prometheus.CounterVec
	ProbeFailures *prometheus.CounterVec
	TaskRuns      *prometheus.CounterVec

	DownloadMbps prometheus.Gauge
	UploadMbps   prometheus.Gauge
	LatencyMs    prometheus.Gauge
	SignalDbm    prometheus.Gauge
	LastCycle    prometheus.Gauge
}

// New registers the collectors against reg (the default registerer when nil).
// Registering twice against the same registry returns the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.CycleDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackify_cycle_duration_seconds",
		Help:    "Duration of full probe-and-store cycles.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})); err != nil {
		return nil, err
	}
	if c.Cycles, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackify_cycles_total",
		Help: "Measurement cycles by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.ProbeFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackify_probe_failures_total",
		Help: "Probes that did not produce a measurement.",
	}, []string{"probe"})); err != nil {
		return nil, err
	}
	if c.TaskRuns, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackify_task_runs_total",
		Help: "Scheduled task invocations by task and outcome.",
	}, []string{"task", "outcome"})); err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.DownloadMbps, "trackify_download_mbps", "Last measured download throughput in megabits per second."},
		{&c.UploadMbps, "trackify_upload_mbps", "Last measured upload throughput in megabits per second."},
		{&c.LatencyMs, "trackify_latency_milliseconds", "Last measured latency."},
		{&c.SignalDbm, "trackify_signal_dbm", "Last read wireless signal strength."},
		{&c.LastCycle, "trackify_last_cycle_timestamp_seconds", "Unix time of the last completed cycle."},
	}
	for _, g := range gauges {
		if *g.dst, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help})); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Gatherer returns the gatherer backing the registerer passed to New.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveCycle records a finished (or rejected) cycle.
func (c *Collector) ObserveCycle(d time.Duration, outcome string) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(outcome).Inc()
	if outcome == OutcomeRejected {
		return
	}
	c.CycleDuration.Observe(d.Seconds())
	c.LastCycle.Set(float64(time.Now().Unix()))
}

// ProbeFailed counts a probe that produced no value.
func (c *Collector) ProbeFailed(probe string) {
	if c == nil {
		return
	}
	c.ProbeFailures.WithLabelValues(probe).Inc()
}

// SetLast updates the last-value gauges. Nil values leave a gauge untouched.
func (c *Collector) SetLast(download, upload *float64, latencyMs *int64, signalDbm *int) {
	if c == nil {
		return
	}
	if download != nil {
		c.DownloadMbps.Set(*download)
	}
	if upload != nil {
		c.UploadMbps.Set(*upload)
	}
	if latencyMs != nil {
		c.LatencyMs.Set(float64(*latencyMs))
	}
	if signalDbm != nil {
		c.SignalDbm.Set(float64(*signalDbm))
	}
}

// ObserveTaskRun counts one scheduled task invocation.
func (c *Collector) ObserveTaskRun(task, outcome string) {
	if c == nil {
		return
	}
	c.TaskRuns.WithLabelValues(task, outcome).Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var zero T
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return zero, err
	}
	return col, nil
}
