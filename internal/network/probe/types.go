package probe

import (
	"math"
	"time"
)

// Default endpoints and payload sizes.
const (
	DefaultLatencyURL  = "https://www.google.com/generate_204"
	DefaultDownloadURL = "https://speed.cloudflare.com/__down?bytes=5000000"
	DefaultUploadURL   = "https://httpbin.org/post"

	DefaultDownloadBytes = 5_000_000
	DefaultUploadBytes   = 5 * 1024 * 1024

	DefaultTimeout = 30 * time.Second
)

// Position is a single location fix.
type Position struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
}

// LatencyResult is the outcome of one latency probe.
// OK=false means the probe failed; Latency is then meaningless.
type LatencyResult struct {
	Latency time.Duration
	OK      bool
	Err     error
}

// Millis returns the latency in whole milliseconds, or nil if the probe failed.
func (r LatencyResult) Millis() *int64 {
	if !r.OK {
		return nil
	}
	ms := r.Latency.Milliseconds()
	return &ms
}

// ThroughputResult is the outcome of one download or upload probe.
type ThroughputResult struct {
	Mbps    float64
	Bytes   int64
	Elapsed time.Duration
	OK      bool
	Err     error
}

// Value returns the throughput, or nil if the probe failed. A measured zero is
// returned as a pointer to 0.
func (r ThroughputResult) Value() *float64 {
	if !r.OK {
		return nil
	}
	v := r.Mbps
	return &v
}

// LocationResult is the outcome of a location probe. Denied is not an error.
type LocationResult struct {
	Position *Position
	Denied   bool
	Err      error
}

// SignalResult carries a signal strength reading in dBm. Available=false on
// platforms (or interfaces) without a readable radio.
type SignalResult struct {
	Dbm       int
	Available bool
	Err       error
}

// Value returns the reading or nil when unavailable.
func (r SignalResult) Value() *int {
	if !r.Available {
		return nil
	}
	v := r.Dbm
	return &v
}

// ConnInfo describes the active network connection.
type ConnInfo struct {
	Type                string
	Interface           string
	IsConnected         bool
	IsInternetReachable *bool
}

// Mbps converts a byte count transferred in elapsed into megabits per second,
// rounded to two decimals.
func Mbps(bytes int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 || bytes <= 0 {
		return 0
	}
	return round2(float64(bytes) * 8 / 1e6 / secs)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
