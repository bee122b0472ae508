package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "trackify/pkg/logx"
)

// RegisterIfNeeded installs a recurring trigger for a defined task.
//
// A restricted or denied policy leaves the task unregistered and is not an
// error. Registering an already registered task is a no-op. The minimum
// interval is clamped to MinimumInterval.
func (s *Service) RegisterIfNeeded(ctx context.Context, name string, opts Options) (State, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StateUnregistered, errors.New("name required")
	}

	status := s.policy.Status(ctx)
	s.log.Debug("background status checked", logx.String("name", name), logx.String("status", string(status)))
	if status == StatusRestricted || status == StatusDenied {
		s.log.Warn("background execution not allowed", logx.String("name", name), logx.String("status", string(status)))
		return StateUnregistered, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.actions[name]; !ok {
		return StateUnregistered, fmt.Errorf("%w: %s", ErrUndefined, name)
	}
	if _, ok := s.regs[name]; ok {
		return StateRegistered, nil
	}

	r, err := newRegistration(s.parser, name, opts, s.now())
	if err != nil {
		return StateUnregistered, err
	}
	if s.c != nil {
		if err := s.addCronLocked(r); err != nil {
			return StateUnregistered, fmt.Errorf("register %s: %w", name, err)
		}
	}
	s.regs[name] = r
	if !r.opts.StopOnTerminate {
		if err := s.saveLocked(ctx); err != nil {
			s.log.Warn("persist registrations failed", logx.Err(err))
		}
	}
	s.log.Info("task registered",
		logx.String("name", name),
		logx.String("spec", r.spec),
		logx.Bool("stop_on_terminate", r.opts.StopOnTerminate),
		logx.Bool("start_on_boot", r.opts.StartOnBoot),
	)
	return StateRegistered, nil
}

// IsRegistered reports whether name has an installed registration.
func (s *Service) IsRegistered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.regs[strings.TrimSpace(name)]
	return ok
}

// Unregister removes the trigger and the persisted registration. It reports
// whether anything was removed.
func (s *Service) Unregister(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropOrphanLocked(name)
	r, ok := s.regs[name]
	if !ok {
		return false
	}
	if s.c != nil && r.entryID != 0 {
		s.c.Remove(r.entryID)
	}
	delete(s.regs, name)
	if err := s.saveLocked(ctx); err != nil {
		s.log.Warn("persist registrations failed", logx.Err(err))
	}
	s.log.Info("task unregistered", logx.String("name", name))
	return true
}

func newRegistration(parser cron.Parser, name string, opts Options, now time.Time) (*registration, error) {
	spec := ""
	if raw := strings.TrimSpace(opts.Schedule); raw != "" {
		ps, err := ParseSchedule(raw)
		if err != nil {
			return nil, err
		}
		switch {
		case ps.Kind == SpecInterval:
			opts.MinimumInterval = ps.Every
		default:
			if every, ok := everyOf(ps.Cron); ok {
				opts.MinimumInterval = every
				break
			}
			if err := checkCronGap(parser, ps.Cron, now); err != nil {
				return nil, err
			}
			spec = ps.Cron
		}
	}
	if opts.MinimumInterval < MinimumInterval {
		opts.MinimumInterval = MinimumInterval
	}
	if spec == "" {
		spec = "@every " + opts.MinimumInterval.String()
	}
	return &registration{name: name, spec: spec, opts: opts, registeredAt: now}, nil
}

// checkCronGap rejects cron specs that would fire more often than
// MinimumInterval.
func checkCronGap(parser cron.Parser, spec string, now time.Time) error {
	sched, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid cron %q: %w", spec, err)
	}
	t := sched.Next(now)
	for i := 0; i < 8 && !t.IsZero(); i++ {
		next := sched.Next(t)
		if next.IsZero() {
			break
		}
		if next.Sub(t) < MinimumInterval {
			return fmt.Errorf("cron %q fires every %s, below the %s minimum", spec, next.Sub(t), MinimumInterval)
		}
		t = next
	}
	return nil
}

func (s *Service) dropOrphanLocked(name string) {
	n := 0
	for _, o := range s.orphans {
		if o.Name != name {
			s.orphans[n] = o
			n++
		}
	}
	s.orphans = s.orphans[:n]
}
