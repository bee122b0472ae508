package probe

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "trackify/pkg/logx"
)

func TestHTTPProberLatency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{name: "no content", status: http.StatusNoContent},
		{name: "server error still reachable", status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			p := NewHTTPProber(HTTPConfig{LatencyURL: srv.URL, Timeout: 5 * time.Second}, logx.Nop())
			res := p.Latency(context.Background())
			if !res.OK {
				t.Fatalf("expected OK, err=%v", res.Err)
			}
			if res.Millis() == nil {
				t.Fatal("expected latency value")
			}
		})
	}
}

func TestHTTPProberLatencyUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewHTTPProber(HTTPConfig{LatencyURL: url, Timeout: 2 * time.Second}, logx.Nop())
	res := p.Latency(context.Background())
	if res.OK {
		t.Fatal("expected failure against closed server")
	}
	if res.Millis() != nil {
		t.Fatal("failed probe must not report a value")
	}
	if res.Err == nil {
		t.Fatal("expected error to be recorded")
	}
}

func TestHTTPProberDownload(t *testing.T) {
	t.Parallel()
	const size = 64 * 1024
	var gotRange atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange.Store(r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(bytes.Repeat([]byte{'x'}, size))
	}))
	defer srv.Close()

	p := NewHTTPProber(HTTPConfig{DownloadURL: srv.URL, DownloadBytes: size, Timeout: 5 * time.Second}, logx.Nop())
	res := p.Download(context.Background())
	if !res.OK {
		t.Fatalf("download failed: %v", res.Err)
	}
	if res.Bytes != size {
		t.Fatalf("bytes = %d, want %d", res.Bytes, size)
	}
	if got, _ := gotRange.Load().(string); got != "bytes=0-65535" {
		t.Fatalf("range header = %q", got)
	}
	if v := res.Value(); v == nil || *v < 0 {
		t.Fatalf("unexpected throughput %v", v)
	}
}

func TestHTTPProberDownloadBadStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewHTTPProber(HTTPConfig{DownloadURL: srv.URL, Timeout: 5 * time.Second}, logx.Nop())
	res := p.Download(context.Background())
	if res.OK || res.Value() != nil {
		t.Fatalf("expected failure, got %+v", res)
	}
}

func TestHTTPProberUpload(t *testing.T) {
	t.Parallel()
	const size = 32 * 1024
	var received atomic.Int64
	var allA atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, _ := io.ReadAll(r.Body)
		received.Store(int64(len(b)))
		allA.Store(len(bytes.Trim(b, "a")) == 0)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber(HTTPConfig{UploadURL: srv.URL, UploadBytes: size, Timeout: 5 * time.Second}, logx.Nop())
	res := p.Upload(context.Background())
	if !res.OK {
		t.Fatalf("upload failed: %v", res.Err)
	}
	if received.Load() != size || res.Bytes != size {
		t.Fatalf("received=%d bytes=%d want %d", received.Load(), res.Bytes, size)
	}
	if !allA.Load() {
		t.Fatal("payload should be filled with 'a'")
	}
}

func TestHTTPProberTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTTPProber(HTTPConfig{LatencyURL: srv.URL, Timeout: 100 * time.Millisecond}, logx.Nop())
	start := time.Now()
	res := p.Latency(context.Background())
	if res.OK {
		t.Fatal("expected timeout failure")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("probe did not honor its timeout")
	}
}

func TestMbps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		bytes   int64
		elapsed time.Duration
		want    float64
	}{
		{bytes: 5_000_000, elapsed: time.Second, want: 40},
		{bytes: 1_000_000, elapsed: 4 * time.Second, want: 2},
		{bytes: 1_000_000, elapsed: 3 * time.Second, want: 2.67},
		{bytes: 0, elapsed: time.Second, want: 0},
		{bytes: 100, elapsed: 0, want: 0},
	}
	for _, tc := range tests {
		if got := Mbps(tc.bytes, tc.elapsed); got != tc.want {
			t.Errorf("Mbps(%d, %v) = %v, want %v", tc.bytes, tc.elapsed, got, tc.want)
		}
	}
}

func TestNewSpeedBackends(t *testing.T) {
	t.Parallel()
	if s, err := NewSpeed("", HTTPConfig{}, SpeedtestConfig{}, logx.Nop()); err != nil {
		t.Fatalf("default backend: %v", err)
	} else if _, ok := s.(*HTTPProber); !ok {
		t.Fatalf("default backend = %T", s)
	}
	if s, err := NewSpeed("speedtest", HTTPConfig{}, SpeedtestConfig{}, logx.Nop()); err != nil {
		t.Fatalf("speedtest backend: %v", err)
	} else if _, ok := s.(*SpeedtestProber); !ok {
		t.Fatalf("speedtest backend = %T", s)
	}
	if _, err := NewSpeed("carrier-pigeon", HTTPConfig{}, SpeedtestConfig{}, logx.Nop()); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
