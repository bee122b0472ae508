package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"trackify/internal/config"
	"trackify/internal/httpapi"
	"trackify/internal/metrics"
	"trackify/internal/network/monitor"
	"trackify/internal/network/probe"
	"trackify/internal/network/samples"
	"trackify/internal/runtime/supervisor"
	"trackify/internal/storage"
	"trackify/internal/task/scheduler"
	logx "trackify/pkg/logx"
)

// TaskName is the identifier of the background measurement task.
const TaskName = "network-monitor-task"

type App struct {
	cfgm    *config.Manager
	watch   bool
	logs    *logx.Service
	log     logx.Logger
	kv      storage.KV
	reg     *prometheus.Registry
	metrics *metrics.Collector

	speed    *speedSwitch
	host     *probe.Interfaces
	position *positionSwitch
	policy   *policySwitch
	store    *samples.Store
	mon      *monitor.Monitor
	sched    *scheduler.Service
	http     *httpapi.Server
	fg       foreground

	sup *supervisor.Supervisor
}

// New loads cfgPath and builds every component. A missing file runs on the
// defaults and is not watched.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	watch := true
	cfg, err := cfgm.Load()
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfgm.Commit(cfg)
		watch = false
	} else if err != nil {
		return nil, err
	}
	if err := checkMappable(cfg); err != nil {
		return nil, err
	}
	return build(cfgm, cfg, watch)
}

func build(cfgm *config.Manager, cfg *config.Config, watch bool) (*App, error) {
	logs, log := logx.New(mapLogging(cfg))
	appLog := log.With(logx.String("comp", "app"))
	if !watch {
		appLog.Warn("config file not found; using defaults", logx.String("path", cfgm.Path()))
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	kv, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a := &App{cfgm: cfgm, watch: watch, logs: logs, log: appLog, kv: kv}
	fail := func(err error) (*App, error) {
		a.closeResources()
		return nil, err
	}

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if a.metrics, err = metrics.New(a.reg); err != nil {
		return fail(err)
	}

	probeLog := log.With(logx.String("comp", "probe"))
	sp, err := buildSpeed(cfg, probeLog)
	if err != nil {
		return fail(err)
	}
	a.speed = &speedSwitch{cur: sp}
	a.host = probe.NewInterfaces()
	if rp := strings.TrimSpace(cfg.Probe.RouteProbe); rp != "" {
		a.host.RouteProbe = rp
	}
	loc, geo, err := buildLocation(cfg, probeLog)
	if err != nil {
		return fail(err)
	}
	a.position = &positionSwitch{loc: loc, geo: geo, log: probeLog}

	ret, err := mapRetention(cfg)
	if err != nil {
		return fail(err)
	}
	key := strings.TrimSpace(cfg.Storage.Key)
	if key == "" {
		key = samples.DefaultKey
	}
	a.store = samples.NewStore(kv,
		samples.WithKey(key),
		samples.WithRetention(ret),
		samples.WithLogger(log.With(logx.String("comp", "samples"))),
	)

	tz, err := loadLocation(cfg.Summary.Timezone)
	if err != nil {
		return fail(err)
	}
	a.mon = monitor.New(a.speed, a.host, a.position, a.store,
		monitor.WithLogger(log),
		monitor.WithMetrics(a.metrics),
		monitor.WithLocation(tz),
	)

	schedCfg, status, err := mapSchedulerConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.policy = &policySwitch{status: status}
	a.sched = scheduler.New(schedCfg, a.policy, kv, log, scheduler.WithMetrics(a.metrics))
	a.sched.Define(TaskName, a.mon.RunCycle)

	if cfg.HTTP.Enabled {
		hs, err := mapHTTPConfig(cfg)
		if err != nil {
			return fail(err)
		}
		h := httpapi.NewHandler(httpapi.Deps{
			Network:   a.mon,
			Scheduler: a.sched,
			Gatherer:  a.metrics.Gatherer(),
			Health:    a.Err,
			Log:       log.With(logx.String("comp", "http")),
			Pprof:     cfg.HTTP.Pprof,
		}, httpapi.NewRefreshLimiter(hs.refreshEvery, hs.refreshBurst))
		a.http = httpapi.NewServer(hs.server, h, log.With(logx.String("comp", "http")))
	}
	return a, nil
}

func (a *App) Monitor() *monitor.Monitor { return a.mon }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings up the scheduler, registers the measurement task and starts
// the status server and the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return checkMappable(cfg)
	})

	cfg := a.cfgm.Get()
	a.sched.Start(ctx)
	if err := a.register(ctx, cfg); err != nil {
		return err
	}

	if a.http != nil {
		a.sup.GoRestart("http.serve", a.http.Run,
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
			supervisor.WithMaxRestarts(10),
		)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	if a.watch {
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Info("app started")
	return nil
}

// register installs the measurement task when the scheduler is enabled. A
// refused registration falls back to foreground polling when configured.
func (a *App) register(ctx context.Context, cfg *config.Config) error {
	if !cfg.Scheduler.Enabled {
		a.stopForeground()
		return nil
	}
	opts, err := mapTaskOptions(cfg)
	if err != nil {
		return err
	}
	state, err := a.sched.RegisterIfNeeded(ctx, TaskName, opts)
	if err != nil {
		return fmt.Errorf("register %s: %w", TaskName, err)
	}
	a.log.Info("background task state", logx.String("name", TaskName), logx.String("state", string(state)))

	if state == scheduler.StateRegistered || !cfg.Scheduler.ForegroundFallback {
		a.stopForeground()
		return nil
	}
	pollCtx := ctx
	if a.sup != nil {
		pollCtx = a.sup.Context()
	}
	a.fg.ensure(pollCtx, a.sched, max(opts.MinimumInterval, scheduler.MinimumInterval), a.mon.RunCycle, a.log)
	return nil
}

func (a *App) stopForeground() {
	if a.fg.stop() {
		a.log.Info("foreground polling stopped", logx.String("name", TaskName))
	}
}

// Stop shuts components down in reverse order. Each step is bounded so one
// component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		c, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(c); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("foreground", 5*time.Second, func(context.Context) error { a.stopForeground(); return nil })
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 5*time.Second, a.sup.Stop)
	}
	a.log.Info("stopped")
	a.closeResources()
	return nil
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	a.closeResources()
	return nil
}

func (a *App) closeResources() {
	if a.speed != nil {
		closeIdle(a.speed.get())
	}
	if a.position != nil {
		a.position.close()
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.kv = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
		a.logs = nil
	}
}
