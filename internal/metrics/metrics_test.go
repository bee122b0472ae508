package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.ObserveCycle(2*time.Second, OutcomeOK)
	c.ObserveCycle(0, OutcomeRejected)
	c.ProbeFailed("upload")
	dl, lat := 42.5, int64(31)
	c.SetLast(&dl, nil, &lat, nil)
	c.ObserveTaskRun("network-monitor-task", "new_data")

	if got := testutil.ToFloat64(c.Cycles.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("ok cycles = %v", got)
	}
	if got := testutil.ToFloat64(c.Cycles.WithLabelValues(OutcomeRejected)); got != 1 {
		t.Fatalf("rejected cycles = %v", got)
	}
	if got := testutil.CollectAndCount(c.CycleDuration); got != 1 {
		t.Fatalf("histogram series = %d", got)
	}
	if got := testutil.ToFloat64(c.ProbeFailures.WithLabelValues("upload")); got != 1 {
		t.Fatalf("probe failures = %v", got)
	}
	if got := testutil.ToFloat64(c.DownloadMbps); got != 42.5 {
		t.Fatalf("download gauge = %v", got)
	}
	if got := testutil.ToFloat64(c.UploadMbps); got != 0 {
		t.Fatalf("upload gauge should be untouched, got %v", got)
	}
	if got := testutil.ToFloat64(c.LatencyMs); got != 31 {
		t.Fatalf("latency gauge = %v", got)
	}
	if got := testutil.ToFloat64(c.TaskRuns.WithLabelValues("network-monitor-task", "new_data")); got != 1 {
		t.Fatalf("task runs = %v", got)
	}
	if c.Gatherer() != reg {
		t.Fatal("gatherer should be the registry")
	}
}

func TestCollectorReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(reg)
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	a.ProbeFailed("latency")
	if got := testutil.ToFloat64(b.ProbeFailures.WithLabelValues("latency")); got != 1 {
		t.Fatalf("collectors should be shared, got %v", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveCycle(time.Second, OutcomeFailed)
	c.ProbeFailed("download")
	c.SetLast(nil, nil, nil, nil)
	c.ObserveTaskRun("x", "failed")
	if c.Gatherer() != nil {
		t.Fatal("nil collector has no gatherer")
	}
}
