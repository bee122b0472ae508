package scheduler

import (
	"context"
	"time"
)

// Snapshot reports registrations, their next trigger and the run history.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	status := s.policy.Status(ctx)

	s.mu.Lock()
	snap := Snapshot{
		Enabled:   s.cfg.Enabled,
		Started:   s.c != nil,
		Status:    status,
		Timezone:  s.cfg.Timezone,
		Schedules: make([]ScheduleInfo, 0, len(s.regs)),
	}
	loc := s.loc
	for _, r := range s.sortedRegsLocked() {
		it := ScheduleInfo{
			Name:            r.name,
			Spec:            r.spec,
			StopOnTerminate: r.opts.StopOnTerminate,
			StartOnBoot:     r.opts.StartOnBoot,
			RegisteredAt:    r.registeredAt,
		}
		if st := s.states[r.name]; st != nil {
			it.Running = st.isRunning()
		}
		if s.c != nil && r.entryID != 0 {
			e := s.c.Entry(r.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	s.mu.Unlock()

	if snap.Timezone == "" {
		if loc == nil {
			loc = time.Local
		}
		snap.Timezone = loc.String()
	}
	snap.History = s.History()
	return snap
}
