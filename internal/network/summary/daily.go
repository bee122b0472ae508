// Package summary aggregates stored samples into daily averages, rolling
// statistics and chart series.
package summary

import (
	"time"

	"github.com/shopspring/decimal"

	"trackify/internal/network/samples"
)

// DailyAggregate holds today's averages. An average is nil when no sample of
// the day measured that metric.
type DailyAggregate struct {
	Date            string   `json:"date"`
	SampleCount     int      `json:"sample_count"`
	AvgDownloadMbps *float64 `json:"avg_download_mbps"`
	AvgUploadMbps   *float64 `json:"avg_upload_mbps"`
	AvgLatencyMs    *float64 `json:"avg_latency_ms"`
}

// ComputeDaily averages the samples whose calendar date in loc matches now's.
// It returns false when there are none.
func ComputeDaily(snap *samples.Snapshot, now time.Time, loc *time.Location) (DailyAggregate, bool) {
	if loc == nil {
		loc = time.Local
	}
	today := now.In(loc)
	agg := DailyAggregate{Date: today.Format(time.DateOnly)}
	if snap == nil {
		return agg, false
	}

	var dl, ul, lat mean
	for _, s := range snap.DailySummary {
		if !sameDay(s.Time().In(loc), today) {
			continue
		}
		agg.SampleCount++
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
	if agg.SampleCount == 0 {
		return agg, false
	}
	agg.AvgDownloadMbps = dl.value()
	agg.AvgUploadMbps = ul.value()
	agg.AvgLatencyMs = lat.value()
	return agg, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// mean sums in decimal so 2-place rounding sees the values as written.
type mean struct {
	sum decimal.Decimal
	n   int
}

func (m *mean) add(v float64) {
	m.sum = m.sum.Add(decimal.NewFromFloat(v))
	m.n++
}

// value is the mean rounded half away from zero to 2 places, nil when empty.
func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum.Div(decimal.NewFromInt(int64(m.n))).Round(2).InexactFloat64()
	return &v
}
