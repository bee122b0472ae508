package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"trackify/internal/config"
	"trackify/internal/task/scheduler"
	logx "trackify/pkg/logx"
)

// reloadLoop applies published configs until ctx ends. Bursts collapse to
// the newest config.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

// apply moves the running components from prev to next. Sections reported
// as restart-only keep their startup settings.
func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	changed := func(s string) bool { return slices.Contains(sections, s) }

	if changed("logging") {
		a.logs.Apply(mapLogging(next))
	}
	if changed("probe") {
		probeLog := a.log.With(logx.String("comp", "probe"))
		if sp, err := buildSpeed(next, probeLog); err != nil {
			a.log.Warn("invalid probe config; keeping previous", logx.Err(err))
		} else {
			a.speed.set(sp)
		}
	}
	if changed("location") {
		if loc, geo, err := buildLocation(next, a.log.With(logx.String("comp", "probe"))); err != nil {
			a.log.Warn("invalid location config; keeping previous", logx.Err(err))
		} else {
			a.position.set(loc, geo)
		}
	}
	if changed("retention") {
		if ret, err := mapRetention(next); err != nil {
			a.log.Warn("invalid retention config; keeping previous", logx.Err(err))
		} else {
			a.store.SetRetention(ret)
		}
	}
	if changed("scheduler") {
		a.applyScheduler(ctx, prev, next)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyScheduler(ctx context.Context, prev, next *config.Config) {
	sc, status, err := mapSchedulerConfig(next)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		return
	}
	a.policy.set(status)
	a.sched.Apply(sc)

	wasOn, isOn := prev.Scheduler.Enabled, next.Scheduler.Enabled
	switch {
	case wasOn && !isOn:
		a.log.Info("scheduler disabled via config")
		a.stopForeground()
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
		return
	case !wasOn && isOn:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	// A changed trigger or a revoked policy needs a fresh registration.
	if status != scheduler.StatusAvailable ||
		prev.Scheduler.Interval != next.Scheduler.Interval ||
		prev.Scheduler.Schedule != next.Scheduler.Schedule ||
		!equalBoolPtr(prev.Scheduler.StopOnTerminate, next.Scheduler.StopOnTerminate) ||
		!equalBoolPtr(prev.Scheduler.StartOnBoot, next.Scheduler.StartOnBoot) {
		a.sched.Unregister(ctx, TaskName)
	}
	if err := a.register(ctx, next); err != nil {
		a.log.Warn("re-register task failed", logx.Err(err))
	}
}

func equalBoolPtr(x, y *bool) bool {
	if x == nil || y == nil {
		return x == y
	}
	return *x == *y
}
