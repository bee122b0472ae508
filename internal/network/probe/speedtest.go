package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"

	logx "trackify/pkg/logx"
)

// SpeedtestConfig controls the speedtest.net backend.
type SpeedtestConfig struct {
	// Candidate servers to ping (nearest first).
	ServerCount    int
	MaxConnections int
	SavingMode     bool

	// ServerTTL is how long a selected server is reused across cycles.
	ServerTTL time.Duration
	Timeout   time.Duration

	DisableHTTP2      bool
	DisableKeepAlives bool
}

func (c SpeedtestConfig) withDefaults() SpeedtestConfig {
	if c.ServerCount <= 0 {
		c.ServerCount = 5
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 4
	}
	if c.ServerTTL <= 0 {
		c.ServerTTL = 30 * time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

var errNoServers = errors.New("speedtest: no servers available")

// SpeedtestProber serves the latency/download/upload probes from the nearest
// speedtest.net server.
type SpeedtestProber struct {
	cfg SpeedtestConfig
	log logx.Logger

	mu       sync.Mutex
	client   *st.Speedtest
	server   *st.Server
	pickedAt time.Time

	now func() time.Time
}

func NewSpeedtestProber(cfg SpeedtestConfig, log logx.Logger) *SpeedtestProber {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	hc, _ := newHTTPClient(HTTPConfig{
		Timeout:           cfg.Timeout,
		DisableHTTP2:      cfg.DisableHTTP2,
		DisableKeepAlives: cfg.DisableKeepAlives,
	})
	stc := st.New(
		st.WithUserConfig(&st.UserConfig{
			SavingMode:     cfg.SavingMode,
			MaxConnections: cfg.MaxConnections,
		}),
		st.WithDoer(hc),
	)
	stc.SetNThread(cfg.MaxConnections)
	return &SpeedtestProber{cfg: cfg, log: log, client: stc, now: time.Now}
}

// Latency pings the selected server.
func (p *SpeedtestProber) Latency(ctx context.Context) LatencyResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.serverLocked(ctx)
	if err != nil {
		return LatencyResult{Err: err}
	}
	if err := s.PingTestContext(ctx, nil); err != nil {
		p.log.Debug("speedtest ping failed", logx.String("server", s.Sponsor), logx.Err(err))
		return LatencyResult{Err: err}
	}
	return LatencyResult{Latency: s.Latency, OK: true}
}

// Download runs a download test against the selected server.
func (p *SpeedtestProber) Download(ctx context.Context) ThroughputResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.serverLocked(ctx)
	if err != nil {
		return ThroughputResult{Err: err}
	}
	start := time.Now()
	err = s.DownloadTestContext(ctx)
	elapsed := time.Since(start)
	p.cleanupLocked()
	if err != nil {
		p.log.Debug("speedtest download failed", logx.String("server", s.Sponsor), logx.Err(err))
		return ThroughputResult{Elapsed: elapsed, Err: err}
	}
	return ThroughputResult{Mbps: round2(s.DLSpeed.Mbps()), Elapsed: elapsed, OK: true}
}

// Upload runs an upload test against the selected server.
func (p *SpeedtestProber) Upload(ctx context.Context) ThroughputResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.serverLocked(ctx)
	if err != nil {
		return ThroughputResult{Err: err}
	}
	start := time.Now()
	err = s.UploadTestContext(ctx)
	elapsed := time.Since(start)
	p.cleanupLocked()
	if err != nil {
		p.log.Debug("speedtest upload failed", logx.String("server", s.Sponsor), logx.Err(err))
		return ThroughputResult{Elapsed: elapsed, Err: err}
	}
	return ThroughputResult{Mbps: round2(s.ULSpeed.Mbps()), Elapsed: elapsed, OK: true}
}

// serverLocked returns the cached server, selecting a new one when the cache
// is empty or stale.
func (p *SpeedtestProber) serverLocked(ctx context.Context) (*st.Server, error) {
	if p.server != nil && p.now().Sub(p.pickedAt) < p.cfg.ServerTTL {
		return p.server, nil
	}

	servers, err := p.client.FetchServerListContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	candidates := nearest(servers, p.cfg.ServerCount)
	for _, s := range candidates {
		if err := s.PingTestContext(ctx, nil); err != nil {
			continue
		}
	}
	best := lowestLatency(candidates)
	if best == nil {
		return nil, errNoServers
	}
	p.server = best
	p.pickedAt = p.now()
	p.log.Info("speedtest server selected",
		logx.String("server", best.Sponsor),
		logx.String("country", best.Country),
		logx.Float64("distance_km", best.Distance),
		logx.Duration("latency", best.Latency),
	)
	return best, nil
}

func (p *SpeedtestProber) cleanupLocked() {
	p.client.Snapshots().Clean()
	p.client.Reset()
}

// nearest returns up to n servers ordered by distance.
func nearest(servers []*st.Server, n int) []*st.Server {
	out := make([]*st.Server, 0, len(servers))
	for _, s := range servers {
		if s != nil {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// lowestLatency picks the responsive server with the smallest latency,
// breaking ties by distance.
func lowestLatency(servers []*st.Server) *st.Server {
	var best *st.Server
	for _, s := range servers {
		if s == nil || s.Latency <= 0 {
			continue
		}
		if best == nil || s.Latency < best.Latency ||
			(s.Latency == best.Latency && s.Distance < best.Distance) {
			best = s
		}
	}
	return best
}
