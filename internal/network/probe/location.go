package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"

	logx "trackify/pkg/logx"
)

// DefaultIPEndpoints return the caller's public address as plain text.
var DefaultIPEndpoints = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://ipinfo.io/ip",
}

// DefaultGeoIPPaths are probed in order when no database path is configured.
var DefaultGeoIPPaths = []string{
	"/usr/share/GeoIP/GeoLite2-City.mmdb",
	"/usr/local/share/GeoIP/GeoLite2-City.mmdb",
	"/var/lib/GeoIP/GeoLite2-City.mmdb",
}

var (
	ErrNoPublicIP   = errors.New("location: public ip not found")
	ErrNoGeoIPDB    = errors.New("location: geoip database not found")
	ErrNoCoordinate = errors.New("location: no coordinates for address")
)

// PermissionGate decides whether location may be read at all.
type PermissionGate interface {
	Granted(ctx context.Context) bool
}

// StaticPermission is a fixed answer, usually from config.
type StaticPermission bool

func (p StaticPermission) Granted(context.Context) bool { return bool(p) }

// Locator produces one position fix.
type Locator interface {
	Locate(ctx context.Context) (*Position, error)
}

// StaticLocator always reports the configured position.
type StaticLocator struct {
	Position Position
}

func (s StaticLocator) Locate(context.Context) (*Position, error) {
	p := s.Position
	return &p, nil
}

// Location runs the permission gate before asking the locator.
type Location struct {
	Gate    PermissionGate
	Locator Locator
	Timeout time.Duration
	Log     logx.Logger
}

// Locate never returns an error past its boundary: denial and lookup failures
// are reported inside the result.
func (l *Location) Locate(ctx context.Context) LocationResult {
	if l == nil || l.Gate == nil || !l.Gate.Granted(ctx) {
		return LocationResult{Denied: true}
	}
	if l.Locator == nil {
		return LocationResult{}
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := l.Locator.Locate(ctx)
	if err != nil {
		l.Log.Debug("location lookup failed", logx.Err(err))
		return LocationResult{Err: err}
	}
	return LocationResult{Position: pos}
}

// cityReader is the subset of *geoip2.Reader used for lookups.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// GeoIPLocator resolves the public address in a GeoLite2 City database.
type GeoIPLocator struct {
	dbPath    string
	endpoints []string
	client    *http.Client
	log       logx.Logger

	mu     sync.Mutex
	reader cityReader
	open   func(path string) (cityReader, error)
}

// GeoIPConfig configures a GeoIPLocator.
type GeoIPConfig struct {
	DBPath      string
	IPEndpoints []string
	Timeout     time.Duration
}

func NewGeoIPLocator(cfg GeoIPConfig, log logx.Logger) *GeoIPLocator {
	if log.IsZero() {
		log = logx.Nop()
	}
	eps := cfg.IPEndpoints
	if len(eps) == 0 {
		eps = DefaultIPEndpoints
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GeoIPLocator{
		dbPath:    strings.TrimSpace(cfg.DBPath),
		endpoints: append([]string(nil), eps...),
		client:    &http.Client{Timeout: timeout},
		log:       log,
		open: func(path string) (cityReader, error) {
			return geoip2.Open(path)
		},
	}
}

func (g *GeoIPLocator) Locate(ctx context.Context) (*Position, error) {
	ip, err := g.publicIP(ctx)
	if err != nil {
		return nil, err
	}
	r, err := g.readerFor()
	if err != nil {
		return nil, err
	}
	rec, err := r.City(ip)
	if err != nil {
		return nil, fmt.Errorf("geoip city lookup: %w", err)
	}
	if rec == nil || (rec.Location.Latitude == 0 && rec.Location.Longitude == 0) {
		return nil, ErrNoCoordinate
	}
	return &Position{
		Latitude:       rec.Location.Latitude,
		Longitude:      rec.Location.Longitude,
		AccuracyMeters: float64(rec.Location.AccuracyRadius) * 1000,
	}, nil
}

// Close releases the database handle.
func (g *GeoIPLocator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reader == nil {
		return nil
	}
	err := g.reader.Close()
	g.reader = nil
	return err
}

func (g *GeoIPLocator) readerFor() (cityReader, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reader != nil {
		return g.reader, nil
	}
	paths := DefaultGeoIPPaths
	if g.dbPath != "" {
		paths = []string{g.dbPath}
	}
	var lastErr error
	for _, p := range paths {
		r, err := g.open(p)
		if err != nil {
			lastErr = err
			continue
		}
		g.reader = r
		g.log.Debug("geoip database opened", logx.String("path", p))
		return r, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGeoIPDB, lastErr)
	}
	return nil, ErrNoGeoIPDB
}

// publicIP returns the first address reported by any echo endpoint.
func (g *GeoIPLocator) publicIP(ctx context.Context) (net.IP, error) {
	for _, ep := range g.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err := g.client.Do(req)
		if err != nil {
			g.log.Debug("public ip endpoint failed", logx.String("endpoint", ep), logx.Err(err))
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			continue
		}
		if ip := net.ParseIP(strings.TrimSpace(string(body))); ip != nil {
			return ip, nil
		}
	}
	return nil, ErrNoPublicIP
}
