package app

import (
	"context"
	"sync"

	"trackify/internal/network/probe"
	"trackify/internal/task/scheduler"
	logx "trackify/pkg/logx"
)

// speedSwitch lets a config reload replace the probe backend between cycles.
type speedSwitch struct {
	mu  sync.RWMutex
	cur probe.Speed
}

func (s *speedSwitch) get() probe.Speed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *speedSwitch) set(sp probe.Speed) {
	s.mu.Lock()
	old := s.cur
	s.cur = sp
	s.mu.Unlock()
	closeIdle(old)
}

func (s *speedSwitch) Latency(ctx context.Context) probe.LatencyResult {
	return s.get().Latency(ctx)
}

func (s *speedSwitch) Download(ctx context.Context) probe.ThroughputResult {
	return s.get().Download(ctx)
}

func (s *speedSwitch) Upload(ctx context.Context) probe.ThroughputResult {
	return s.get().Upload(ctx)
}

func closeIdle(sp probe.Speed) {
	if c, ok := sp.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// positionSwitch owns the current location probe and its geoip handle.
type positionSwitch struct {
	mu  sync.RWMutex
	loc *probe.Location
	geo *probe.GeoIPLocator
	log logx.Logger
}

func (p *positionSwitch) Locate(ctx context.Context) probe.LocationResult {
	p.mu.RLock()
	loc := p.loc
	p.mu.RUnlock()
	return loc.Locate(ctx)
}

func (p *positionSwitch) set(loc *probe.Location, geo *probe.GeoIPLocator) {
	p.mu.Lock()
	old := p.geo
	p.loc, p.geo = loc, geo
	p.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			p.log.Warn("close geoip database failed", logx.Err(err))
		}
	}
}

func (p *positionSwitch) close() {
	p.set(nil, nil)
}

// policySwitch reports the configured background status.
type policySwitch struct {
	mu     sync.RWMutex
	status scheduler.Status
}

func (p *policySwitch) Status(context.Context) scheduler.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *policySwitch) set(st scheduler.Status) {
	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
}

var (
	_ probe.Speed      = (*speedSwitch)(nil)
	_ probe.Positioner = (*positionSwitch)(nil)
	_ scheduler.Policy = (*policySwitch)(nil)
)
