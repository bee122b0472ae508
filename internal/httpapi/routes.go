// Package httpapi serves the cached measurements, summaries, scheduler state
// and Prometheus metrics over HTTP.
//
// Routes:
//   - GET  /healthz
//   - GET  /metrics
//   - GET  /api/v1/network                 cached snapshot (404 when none)
//   - POST /api/v1/network/refresh         run a cycle now (409 in flight, 429 throttled)
//   - GET  /api/v1/network/connection      current connection type
//   - GET  /api/v1/network/summary         today's aggregate (404 when empty)
//   - GET  /api/v1/network/stats?window=24h
//   - GET  /api/v1/network/chart?metric=speed&period=day
//   - GET  /api/v1/network/chart.png?metric=speed&period=day
//   - GET  /debug/pprof/                   only with Deps.Pprof
//   - GET  /api/v1/scheduler
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"trackify/internal/network/monitor"
	"trackify/internal/network/samples"
	"trackify/internal/network/summary"
	"trackify/internal/task/scheduler"
	logx "trackify/pkg/logx"
)

// Network is the measurement pipeline as seen by the API.
type Network interface {
	CurrentNetworkInfo(ctx context.Context) (*samples.Snapshot, error)
	CachedData(ctx context.Context) (*samples.Snapshot, error)
	DailySummary(ctx context.Context) (summary.DailyAggregate, bool)
	Stats(ctx context.Context, window time.Duration, label string) summary.Stats
	Chart(ctx context.Context, metric summary.Metric, period summary.Period) summary.ChartData
	ConnectionType(ctx context.Context) string
}

// Scheduler reports the background task state.
type Scheduler interface {
	Snapshot(ctx context.Context) scheduler.Snapshot
}

var (
	_ Network   = (*monitor.Monitor)(nil)
	_ Scheduler = (*scheduler.Service)(nil)
)

// Deps are the collaborators behind the routes. Scheduler and Gatherer may
// be nil.
type Deps struct {
	Network   Network
	Scheduler Scheduler
	Gatherer  prometheus.Gatherer
	Health    func() error
	Log       logx.Logger
	// Pprof mounts the runtime profiling handlers.
	Pprof bool
}

type handlers struct {
	Deps
	refresh *rate.Limiter
}

// NewHandler builds the route table. refresh limits POST refresh calls.
func NewHandler(d Deps, refresh *rate.Limiter) http.Handler {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{Deps: d, refresh: refresh}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/v1/network", h.network)
	mux.HandleFunc("POST /api/v1/network/refresh", h.refreshNetwork)
	mux.HandleFunc("GET /api/v1/network/connection", h.connection)
	mux.HandleFunc("GET /api/v1/network/summary", h.summary)
	mux.HandleFunc("GET /api/v1/network/stats", h.stats)
	mux.HandleFunc("GET /api/v1/network/chart", h.chart)
	mux.HandleFunc("GET /api/v1/network/chart.png", h.chartPNG)
	mux.HandleFunc("GET /api/v1/scheduler", h.scheduler)
	if d.Pprof {
		mountPprof(mux)
	}
	return mux
}

// NewRefreshLimiter allows one refresh per every, with burst. A zero every
// disables throttling.
func NewRefreshLimiter(every time.Duration, burst int) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(every), max(burst, 1))
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) network(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Network.CachedData(r.Context())
	if err != nil {
		h.Log.Error("read cached snapshot failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no network data recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) refreshNetwork(w http.ResponseWriter, r *http.Request) {
	if h.refresh != nil {
		res := h.refresh.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "refresh rate limited")
			return
		}
	}
	snap, err := h.Network.CurrentNetworkInfo(r.Context())
	switch {
	case errors.Is(err, monitor.ErrCycleInFlight):
		writeError(w, http.StatusConflict, "a measurement cycle is already running")
	case err != nil:
		h.Log.Error("refresh cycle failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "measurement cycle failed")
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (h *handlers) connection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"type": h.Network.ConnectionType(r.Context())})
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.Network.DailySummary(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no network data for today")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		raw = "24h"
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		writeError(w, http.StatusBadRequest, "window must be a positive duration like 24h")
		return
	}
	writeJSON(w, http.StatusOK, h.Network.Stats(r.Context(), window, raw))
}

func (h *handlers) chart(w http.ResponseWriter, r *http.Request) {
	metric, period, ok := chartParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Network.Chart(r.Context(), metric, period))
}

func (h *handlers) chartPNG(w http.ResponseWriter, r *http.Request) {
	metric, period, ok := chartParams(w, r)
	if !ok {
		return
	}
	data := h.Network.Chart(r.Context(), metric, period)
	var buf bytes.Buffer
	err := summary.RenderPNG(&buf, data, metric, 0, 0)
	switch {
	case errors.Is(err, summary.ErrEmptyChart):
		writeError(w, http.StatusNotFound, "no samples in period")
		return
	case err != nil:
		h.Log.Error("render chart failed", logx.String("metric", string(metric)), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func chartParams(w http.ResponseWriter, r *http.Request) (summary.Metric, summary.Period, bool) {
	q := r.URL.Query()
	metric, err := summary.ParseMetric(q.Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	period, err := summary.ParsePeriod(q.Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return metric, period, true
}

func (h *handlers) scheduler(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusNotFound, "scheduler not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Snapshot(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
