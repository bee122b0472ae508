package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// delayedFirst holds back the first measurement after a registration so
// the cycle does not start in the same instant as process start-up work.
// Later triggers follow the plain interval.
type delayedFirst struct {
	every cron.Schedule
	first time.Time
}

func (d *delayedFirst) Next(t time.Time) time.Time {
	if t.Before(d.first) {
		return d.first
	}
	return d.every.Next(t)
}

// spreadInterval returns an @every trigger whose first run lands one interval
// plus an offset after now. The offset is derived from the task name, so a
// restarted process measures at the same phase as before. It stays below
// min(every, 30s).
func spreadInterval(every time.Duration, now time.Time, name string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	window := min(every, maxStartupSpread)
	if window <= 0 {
		return base, 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	offset := time.Duration(h.Sum64() % uint64(window))
	return &delayedFirst{every: base, first: now.Add(every + offset)}, offset
}
