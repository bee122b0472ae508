package probe

import (
	"context"
	"fmt"
	"strings"

	logx "trackify/pkg/logx"
)

// Speed measures latency and throughput.
type Speed interface {
	Latency(ctx context.Context) LatencyResult
	Download(ctx context.Context) ThroughputResult
	Upload(ctx context.Context) ThroughputResult
}

// Host reports local connection facts.
type Host interface {
	Connection(ctx context.Context, reachable *bool) ConnInfo
	Signal(ctx context.Context) SignalResult
}

// Positioner reports a location fix subject to permission.
type Positioner interface {
	Locate(ctx context.Context) LocationResult
}

var (
	_ Speed      = (*HTTPProber)(nil)
	_ Speed      = (*SpeedtestProber)(nil)
	_ Host       = (*Interfaces)(nil)
	_ Positioner = (*Location)(nil)
	_ Locator    = (*GeoIPLocator)(nil)
	_ Locator    = StaticLocator{}
)

// Backend names accepted by NewSpeed.
const (
	BackendHTTP      = "http"
	BackendSpeedtest = "speedtest"
)

// NewSpeed builds the configured measurement backend.
func NewSpeed(backend string, hc HTTPConfig, sc SpeedtestConfig, log logx.Logger) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendHTTP:
		return NewHTTPProber(hc, log), nil
	case BackendSpeedtest:
		return NewSpeedtestProber(sc, log), nil
	default:
		return nil, fmt.Errorf("unknown probe backend %q", backend)
	}
}
