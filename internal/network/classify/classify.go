// Package classify maps raw network measurements onto qualitative levels.
//
// Every function is pure: no smoothing, no hysteresis. Two consecutive cycles
// can land on adjacent levels.
package classify

import (
	"fmt"
	"strings"
)

// Level is a qualitative rating of a measurement.
type Level string

const (
	Excellent Level = "excellent"
	Good      Level = "good"
	Fair      Level = "fair"
	Poor      Level = "poor"
	Unknown   Level = "unknown"
)

// Rank orders levels: excellent=4 down to poor=1, unknown=0.
func (l Level) Rank() int {
	switch l {
	case Excellent:
		return 4
	case Good:
		return 3
	case Fair:
		return 2
	case Poor:
		return 1
	default:
		return 0
	}
}

func (l Level) String() string {
	if l == "" {
		return string(Unknown)
	}
	return string(l)
}

// ParseLevel parses a level name (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case Excellent:
		return Excellent, nil
	case Good:
		return Good, nil
	case Fair:
		return Fair, nil
	case Poor:
		return Poor, nil
	case Unknown, "":
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("unknown level %q", s)
	}
}

// Throughput rates a download or upload speed in Mbps. Higher is better and
// every boundary is exclusive: 25 is good, 10 is fair, 2 is poor.
func Throughput(mbps float64) Level {
	switch {
	case mbps > 25:
		return Excellent
	case mbps > 10:
		return Good
	case mbps > 2:
		return Fair
	default:
		return Poor
	}
}

// Latency rates a round-trip time in ms. Lower is better: 50 is good, 100 is
// fair, 200 is poor.
func Latency(ms int64) Level {
	switch {
	case ms < 50:
		return Excellent
	case ms < 100:
		return Good
	case ms < 200:
		return Fair
	default:
		return Poor
	}
}

// Signal rates a radio signal strength in dBm. Boundaries are inclusive.
// A nil reading is Unknown.
func Signal(dbm *int) Level {
	if dbm == nil {
		return Unknown
	}
	switch v := *dbm; {
	case v >= -70:
		return Excellent
	case v >= -85:
		return Good
	case v >= -100:
		return Fair
	default:
		return Poor
	}
}

// ThroughputOf is Throughput for an optional measurement.
func ThroughputOf(mbps *float64) Level {
	if mbps == nil {
		return Unknown
	}
	return Throughput(*mbps)
}

// LatencyOf is Latency for an optional measurement.
func LatencyOf(ms *int64) Level {
	if ms == nil {
		return Unknown
	}
	return Latency(*ms)
}
