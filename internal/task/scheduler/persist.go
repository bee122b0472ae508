package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logx "trackify/pkg/logx"
)

// registryKey is the storage key holding persisted registrations.
const registryKey = "scheduler_registrations"

type persistedRegistration struct {
	Name                   string    `json:"name"`
	Schedule               string    `json:"schedule,omitempty"`
	MinimumIntervalSeconds int64     `json:"minimum_interval_seconds"`
	StopOnTerminate        bool      `json:"stop_on_terminate"`
	StartOnBoot            bool      `json:"start_on_boot"`
	TimeoutSeconds         int64     `json:"timeout_seconds,omitempty"`
	RegisteredAt           time.Time `json:"registered_at"`
}

// saveLocked writes every registration that should outlive the process.
// Call with s.mu held.
func (s *Service) saveLocked(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	out := []persistedRegistration{}
	for _, r := range s.sortedRegsLocked() {
		if r.opts.StopOnTerminate {
			continue
		}
		out = append(out, persistedRegistration{
			Name:                   r.name,
			Schedule:               r.opts.Schedule,
			MinimumIntervalSeconds: int64(r.opts.MinimumInterval / time.Second),
			StopOnTerminate:        r.opts.StopOnTerminate,
			StartOnBoot:            r.opts.StartOnBoot,
			TimeoutSeconds:         int64(r.opts.Timeout / time.Second),
			RegisteredAt:           r.registeredAt,
		})
	}
	for _, o := range s.orphans {
		if _, ok := s.regs[o.Name]; !ok {
			out = append(out, o)
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal registrations: %w", err)
	}
	return s.kv.Set(ctx, registryKey, b)
}

// restoreLocked re-registers persisted tasks that have a definition. Entries
// without a definition stay persisted so a later build can pick them up.
// Call with s.mu held.
func (s *Service) restoreLocked(ctx context.Context) {
	if s.kv == nil {
		return
	}
	b, ok, err := s.kv.Get(ctx, registryKey)
	if err != nil {
		s.log.Warn("load registrations failed", logx.Err(err))
		return
	}
	if !ok || len(b) == 0 {
		return
	}
	var stored []persistedRegistration
	if err := json.Unmarshal(b, &stored); err != nil {
		s.log.Warn("discarding corrupt registrations", logx.Err(err))
		return
	}
	restored := 0
	s.orphans = nil
	for _, p := range stored {
		if _, exists := s.regs[p.Name]; exists {
			continue
		}
		if _, defined := s.actions[p.Name]; !defined {
			s.log.Warn("persisted task has no definition", logx.String("name", p.Name))
			s.orphans = append(s.orphans, p)
			continue
		}
		opts := Options{
			MinimumInterval: time.Duration(p.MinimumIntervalSeconds) * time.Second,
			Schedule:        p.Schedule,
			StopOnTerminate: p.StopOnTerminate,
			StartOnBoot:     p.StartOnBoot,
			Timeout:         time.Duration(p.TimeoutSeconds) * time.Second,
		}
		r, err := newRegistration(s.parser, p.Name, opts, p.RegisteredAt)
		if err != nil {
			s.log.Warn("persisted registration invalid", logx.String("name", p.Name), logx.Err(err))
			continue
		}
		s.regs[p.Name] = r
		restored++
	}
	if restored > 0 {
		s.log.Info("registrations restored", logx.Int("count", restored))
	}
}
