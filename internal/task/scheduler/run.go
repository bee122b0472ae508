package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	logx "trackify/pkg/logx"
)

// runState guards a task against overlapping invocations.
type runState struct {
	mu      sync.Mutex
	running bool
}

func (r *runState) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *runState) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *runState) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RunNow invokes a defined task immediately, outside its trigger. The
// overlap guard still applies.
func (s *Service) RunNow(ctx context.Context, name string) (Outcome, error) {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	_, ok := s.actions[name]
	s.mu.Unlock()
	if !ok {
		return OutcomeFailed, fmt.Errorf("%w: %s", ErrUndefined, name)
	}
	return s.invoke(ctx, name, "manual"), nil
}

func (s *Service) invoke(ctx context.Context, name, trigger string) Outcome {
	s.mu.Lock()
	action := s.actions[name]
	state := s.states[name]
	timeout := s.cfg.DefaultTimeout
	if r, ok := s.regs[name]; ok && r.opts.Timeout > 0 {
		timeout = r.opts.Timeout
	}
	s.mu.Unlock()

	started := s.now()
	if action == nil || state == nil {
		s.record(Run{Name: name, Trigger: trigger, Started: started, Outcome: OutcomeFailed, Error: ErrUndefined.Error()})
		return OutcomeFailed
	}
	if !state.tryAcquire() {
		s.log.Debug("task skipped due to overlap", logx.String("task", name), logx.String("trigger", trigger))
		s.record(Run{Name: name, Trigger: trigger, Started: started, Outcome: OutcomeSkipped})
		return OutcomeSkipped
	}
	defer state.release()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.log.Debug("task started", logx.String("task", name), logx.String("trigger", trigger))
	err := safeRun(ctx, action)
	dur := s.now().Sub(started)

	run := Run{Name: name, Trigger: trigger, Started: started, Duration: dur}
	switch {
	case err == nil:
		run.Outcome = OutcomeNewData
		s.log.Info("task finished", logx.String("task", name), logx.String("outcome", string(run.Outcome)), logx.Duration("took", dur))
	case errors.Is(err, ErrSkipped):
		run.Outcome = OutcomeSkipped
		s.log.Debug("task skipped by action", logx.String("task", name), logx.String("trigger", trigger), logx.Err(err))
	case errors.Is(err, ErrNoData):
		run.Outcome = OutcomeNoData
		s.log.Info("task finished", logx.String("task", name), logx.String("outcome", string(run.Outcome)), logx.Duration("took", dur))
	default:
		run.Outcome = OutcomeFailed
		run.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", name), logx.Duration("took", dur), logx.Err(err))
	}
	s.record(run)
	return run.Outcome
}

func safeRun(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return action(ctx)
}

func (s *Service) record(run Run) {
	s.metrics.ObserveTaskRun(run.Name, string(run.Outcome))

	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()
	if size <= 0 {
		size = defaultHistorySize
	}
	s.hmu.Lock()
	s.history = append(s.history, run)
	if over := len(s.history) - size; over > 0 {
		s.history = append([]Run(nil), s.history[over:]...)
	}
	s.hmu.Unlock()
}

// History returns recorded runs, newest last.
func (s *Service) History() []Run {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]Run(nil), s.history...)
}

// LastRun returns the most recent run of name.
func (s *Service) LastRun(name string) (Run, bool) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Name == name {
			return s.history[i], true
		}
	}
	return Run{}, false
}

