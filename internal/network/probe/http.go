package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	logx "trackify/pkg/logx"
)

// HTTPConfig controls the HTTP probe backend.
type HTTPConfig struct {
	LatencyURL  string
	DownloadURL string
	UploadURL   string

	DownloadBytes int64
	UploadBytes   int

	// Timeout bounds each individual probe.
	Timeout time.Duration

	DisableHTTP2      bool
	DisableKeepAlives bool
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if strings.TrimSpace(c.LatencyURL) == "" {
		c.LatencyURL = DefaultLatencyURL
	}
	if strings.TrimSpace(c.DownloadURL) == "" {
		c.DownloadURL = DefaultDownloadURL
	}
	if strings.TrimSpace(c.UploadURL) == "" {
		c.UploadURL = DefaultUploadURL
	}
	if c.DownloadBytes <= 0 {
		c.DownloadBytes = DefaultDownloadBytes
	}
	if c.UploadBytes <= 0 {
		c.UploadBytes = DefaultUploadBytes
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// HTTPProber measures latency and throughput with plain HTTP requests.
type HTTPProber struct {
	cfg    HTTPConfig
	client *http.Client
	tr     *http.Transport
	log    logx.Logger
}

// NewHTTPProber constructs an HTTPProber with its own transport so connections
// can be cleaned up between cycles.
func NewHTTPProber(cfg HTTPConfig, log logx.Logger) *HTTPProber {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	hc, tr := newHTTPClient(cfg)
	return &HTTPProber{cfg: cfg, client: hc, tr: tr, log: log}
}

// Latency issues a GET to the latency URL and times the full round trip.
// Any HTTP response counts as reachable; only transport failures fail the probe.
func (p *HTTPProber) Latency(ctx context.Context) LatencyResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.LatencyURL, nil)
	if err != nil {
		return LatencyResult{Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("latency probe failed", logx.String("url", p.cfg.LatencyURL), logx.Err(err))
		return LatencyResult{Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return LatencyResult{Latency: time.Since(start), OK: true}
}

// Download fetches the first DownloadBytes of the test object and times the body transfer.
func (p *HTTPProber) Download(ctx context.Context) ThroughputResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DownloadURL, nil)
	if err != nil {
		return ThroughputResult{Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", p.cfg.DownloadBytes-1))

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("download probe failed", logx.String("url", p.cfg.DownloadURL), logx.Err(err))
		return ThroughputResult{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("download test file: unexpected status %d", resp.StatusCode)
		p.log.Debug("download probe failed", logx.String("url", p.cfg.DownloadURL), logx.Err(err))
		return ThroughputResult{Err: err}
	}

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, p.cfg.DownloadBytes))
	elapsed := time.Since(start)
	if err != nil {
		p.log.Debug("download probe body failed", logx.Int64("bytes", n), logx.Err(err))
		return ThroughputResult{Bytes: n, Elapsed: elapsed, Err: err}
	}
	return ThroughputResult{Mbps: Mbps(n, elapsed), Bytes: n, Elapsed: elapsed, OK: true}
}

// Upload posts a fixed buffer to the echo endpoint and times the exchange.
func (p *HTTPProber) Upload(ctx context.Context) ThroughputResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	payload := bytes.Repeat([]byte{'a'}, p.cfg.UploadBytes)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.UploadURL, bytes.NewReader(payload))
	if err != nil {
		return ThroughputResult{Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(payload))

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("upload probe failed", logx.String("url", p.cfg.UploadURL), logx.Err(err))
		return ThroughputResult{Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	elapsed := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("upload test data: unexpected status %d", resp.StatusCode)
		p.log.Debug("upload probe failed", logx.String("url", p.cfg.UploadURL), logx.Err(err))
		return ThroughputResult{Err: err}
	}
	n := int64(len(payload))
	return ThroughputResult{Mbps: Mbps(n, elapsed), Bytes: n, Elapsed: elapsed, OK: true}
}

// CloseIdleConnections drops pooled connections after a cycle.
func (p *HTTPProber) CloseIdleConnections() {
	if p != nil && p.tr != nil {
		p.tr.CloseIdleConnections()
	}
}

const userAgent = "trackify/1.0"

func newHTTPClient(cfg HTTPConfig) (*http.Client, *http.Transport) {
	dialTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		capTo := cfg.Timeout / 2
		if capTo < dialTimeout {
			dialTimeout = capTo
		}
		if dialTimeout < 2*time.Second {
			dialTimeout = 2 * time.Second
		}
	}

	keepAlive := 30 * time.Second
	if cfg.DisableKeepAlives {
		// A negative KeepAlive means "disable" for net.Dialer.
		keepAlive = -1
	}
	d := &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		// Throughput must reflect raw bytes on the wire.
		DisableCompression: true,
		ForceAttemptHTTP2:  !cfg.DisableHTTP2,
	}
	if cfg.DisableHTTP2 {
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return &http.Client{Transport: tr}, tr
}
