package samples

import (
	"time"

	"trackify/internal/network/classify"
	"trackify/internal/network/probe"
)

// Sample is one measurement cycle. Nil fields were not measured.
type Sample struct {
	Timestamp    int64           `json:"timestamp"`
	DownloadMbps *float64        `json:"download_mbps"`
	UploadMbps   *float64        `json:"upload_mbps"`
	LatencyMs    *int64          `json:"latency_ms"`
	Location     *probe.Position `json:"location"`
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time { return time.UnixMilli(s.Timestamp) }

// Snapshot is the latest known network state plus the retained samples.
type Snapshot struct {
	CycleID             string          `json:"cycle_id,omitempty"`
	ConnectionType      string          `json:"connection_type"`
	Interface           string          `json:"interface,omitempty"`
	IsConnected         bool            `json:"is_connected"`
	IsInternetReachable *bool           `json:"is_internet_reachable"`
	SignalStrengthDbm   *int            `json:"signal_strength_dbm"`
	SignalStatus        classify.Level  `json:"signal_status"`
	DownloadMbps        *float64        `json:"download_mbps"`
	DownloadStatus      classify.Level  `json:"download_status"`
	UploadMbps          *float64        `json:"upload_mbps"`
	UploadStatus        classify.Level  `json:"upload_status"`
	LatencyMs           *int64          `json:"latency_ms"`
	LatencyStatus       classify.Level  `json:"latency_status"`
	Location            *probe.Position `json:"location"`
	DailySummary        []Sample        `json:"daily_summary"`
}

// Empty returns a snapshot with every status unknown and no samples.
func Empty() *Snapshot {
	return &Snapshot{
		ConnectionType: probe.ConnUnknown,
		SignalStatus:   classify.Unknown,
		DownloadStatus: classify.Unknown,
		UploadStatus:   classify.Unknown,
		LatencyStatus:  classify.Unknown,
		DailySummary:   []Sample{},
	}
}

// Clone returns a deep copy of the sample list; the other pointer fields are
// treated as immutable and shared.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.DailySummary = append([]Sample(nil), s.DailySummary...)
	return &cp
}

// Record is the persisted envelope.
type Record struct {
	Data      *Snapshot `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// UpdatedAt is the time the record was last written.
func (r Record) UpdatedAt() time.Time { return time.UnixMilli(r.Timestamp) }

// Retention bounds the sample list. Zero values disable the bound.
type Retention struct {
	MaxAge     time.Duration
	MaxSamples int
}

// DefaultRetention keeps thirty days of samples, at most 2000 of them.
var DefaultRetention = Retention{MaxAge: 30 * 24 * time.Hour, MaxSamples: 2000}

// Apply drops samples older than MaxAge relative to now, then keeps the newest
// MaxSamples in their original order.
func (r Retention) Apply(in []Sample, now time.Time) []Sample {
	out := in
	if r.MaxAge > 0 {
		cutoff := now.Add(-r.MaxAge).UnixMilli()
		kept := make([]Sample, 0, len(in))
		for _, s := range in {
			if s.Timestamp >= cutoff {
				kept = append(kept, s)
			}
		}
		out = kept
	}
	if r.MaxSamples > 0 && len(out) > r.MaxSamples {
		out = append([]Sample(nil), out[len(out)-r.MaxSamples:]...)
	}
	return out
}
