package summary

import (
	"fmt"
	"strings"
	"time"

	"trackify/internal/network/samples"
)

// Metric selects the sample field charted.
type Metric string

const (
	MetricSpeed   Metric = "speed"
	MetricUpload  Metric = "upload"
	MetricLatency Metric = "latency"
	// MetricReliability is charted from upload throughput.
	MetricReliability Metric = "reliability"
)

// Period selects the bucket granularity.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricSpeed, MetricUpload, MetricLatency, MetricReliability:
		return m, nil
	case "":
		return MetricSpeed, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	case "":
		return PeriodDay, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Window is the look-back span a period covers.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	case PeriodYear:
		return 365 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (p Period) label(t time.Time) string {
	switch p {
	case PeriodWeek:
		return t.Format("Mon")
	case PeriodMonth:
		return t.Format("2")
	case PeriodYear:
		return t.Format("Jan")
	default:
		return t.Format("15") + ":00"
	}
}

// ChartData is a labelled series of bucket means.
type ChartData struct {
	Title  string    `json:"title"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Chart buckets samples by period label and averages the metric per bucket.
// Labels keep first-seen order; buckets without a measured value are omitted.
func Chart(in []samples.Sample, metric Metric, period Period, loc *time.Location) ChartData {
	if loc == nil {
		loc = time.Local
	}
	out := ChartData{Title: Title(metric), Labels: []string{}, Values: []float64{}}
	order := []string{}
	buckets := map[string]*mean{}
	for _, s := range in {
		v, ok := metricValue(s, metric)
		if !ok {
			continue
		}
		label := period.label(s.Time().In(loc))
		b, seen := buckets[label]
		if !seen {
			b = &mean{}
			buckets[label] = b
			order = append(order, label)
		}
		b.add(v)
	}
	for _, label := range order {
		out.Labels = append(out.Labels, label)
		out.Values = append(out.Values, *buckets[label].value())
	}
	return out
}

// Title is the human-readable chart heading for metric.
func Title(metric Metric) string {
	switch metric {
	case MetricSpeed:
		return "Download Speed"
	case MetricUpload, MetricReliability:
		return "Upload Speed"
	case MetricLatency:
		return "Latency"
	default:
		return string(metric)
	}
}

func metricValue(s samples.Sample, metric Metric) (float64, bool) {
	switch metric {
	case MetricSpeed:
		if s.DownloadMbps != nil {
			return *s.DownloadMbps, true
		}
	case MetricUpload, MetricReliability:
		if s.UploadMbps != nil {
			return *s.UploadMbps, true
		}
	case MetricLatency:
		if s.LatencyMs != nil {
			return float64(*s.LatencyMs), true
		}
	}
	return 0, false
}
