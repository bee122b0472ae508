package summary

import (
	"time"

	"trackify/internal/network/samples"
)

// MetricStats is min/avg/max over the samples that measured a metric.
type MetricStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
}

// Stats is a rolling window summary.
type Stats struct {
	Period      string       `json:"period"`
	SampleCount int          `json:"sample_count"`
	Download    *MetricStats `json:"download_mbps"`
	Upload      *MetricStats `json:"upload_mbps"`
	Latency     *MetricStats `json:"latency_ms"`
	FirstSample time.Time    `json:"first_sample"`
	LastSample  time.Time    `json:"last_sample"`
}

// ComputeStats summarizes samples taken at or after since. period is a label
// for display only.
func ComputeStats(in []samples.Sample, since time.Time, period string) Stats {
	st := Stats{Period: period}
	var dl, ul, lat acc
	for _, s := range in {
		ts := s.Time()
		if ts.Before(since) {
			continue
		}
		st.SampleCount++
		if st.FirstSample.IsZero() || ts.Before(st.FirstSample) {
			st.FirstSample = ts
		}
		if ts.After(st.LastSample) {
			st.LastSample = ts
		}
		if s.DownloadMbps != nil {
			dl.add(*s.DownloadMbps)
		}
		if s.UploadMbps != nil {
			ul.add(*s.UploadMbps)
		}
		if s.LatencyMs != nil {
			lat.add(float64(*s.LatencyMs))
		}
	}
	st.Download = dl.stats()
	st.Upload = ul.stats()
	st.Latency = lat.stats()
	return st
}

type acc struct {
	m        mean
	min, max float64
}

func (a *acc) add(v float64) {
	if a.m.n == 0 || v < a.min {
		a.min = v
	}
	if a.m.n == 0 || v > a.max {
		a.max = v
	}
	a.m.add(v)
}

func (a acc) stats() *MetricStats {
	avg := a.m.value()
	if avg == nil {
		return nil
	}
	return &MetricStats{Count: a.m.n, Min: a.min, Avg: *avg, Max: a.max}
}
