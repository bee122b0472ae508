package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"trackify/internal/storage"
	logx "trackify/pkg/logx"
)

const taskName = "network-monitor-task"

func newTestService(t *testing.T, kv storage.KV, status Status) *Service {
	t.Helper()
	if kv == nil {
		kv = storage.NewMemory()
		t.Cleanup(func() { _ = kv.Close() })
	}
	s := New(Config{Enabled: true, HistorySize: 10}, StaticPolicy(status), kv, logx.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func persisted(t *testing.T, kv storage.KV) []persistedRegistration {
	t.Helper()
	b, ok, err := kv.Get(context.Background(), registryKey)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		return nil
	}
	var out []persistedRegistration
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestRegisterIfNeededIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	s := newTestService(t, kv, StatusAvailable)
	s.Define(taskName, func(context.Context) error { return nil })

	for i := 0; i < 2; i++ {
		st, err := s.RegisterIfNeeded(ctx, taskName, DefaultOptions())
		if err != nil || st != StateRegistered {
			t.Fatalf("attempt %d: state=%s err=%v", i, st, err)
		}
	}
	if !s.IsRegistered(taskName) {
		t.Fatal("expected registration")
	}
	snap := s.Snapshot(ctx)
	if len(snap.Schedules) != 1 {
		t.Fatalf("schedules = %d, want 1", len(snap.Schedules))
	}
	if got := snap.Schedules[0].Spec; got != "@every 5m0s" {
		t.Fatalf("spec = %q", got)
	}
	if p := persisted(t, kv); len(p) != 1 || p[0].MinimumIntervalSeconds != 300 || !p[0].StartOnBoot || p[0].StopOnTerminate {
		t.Fatalf("persisted = %+v", p)
	}
}

func TestRegisterIfNeededPolicyGate(t *testing.T) {
	t.Parallel()
	for _, status := range []Status{StatusDenied, StatusRestricted} {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()
			s := newTestService(t, nil, status)
			s.Define(taskName, func(context.Context) error { return nil })
			st, err := s.RegisterIfNeeded(context.Background(), taskName, DefaultOptions())
			if err != nil {
				t.Fatalf("denial is not an error: %v", err)
			}
			if st != StateUnregistered || s.IsRegistered(taskName) {
				t.Fatalf("state = %s", st)
			}
		})
	}
}

func TestRegisterIfNeededUndefined(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil, StatusAvailable)
	if _, err := s.RegisterIfNeeded(context.Background(), "ghost", DefaultOptions()); !errors.Is(err, ErrUndefined) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.RegisterIfNeeded(context.Background(), "  ", DefaultOptions()); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestRegistrationIntervalClamp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		opts     Options
		wantSpec string
		wantErr  bool
	}{
		{name: "below minimum", opts: Options{MinimumInterval: time.Minute}, wantSpec: "@every 5m0s"},
		{name: "above minimum", opts: Options{MinimumInterval: 15 * time.Minute}, wantSpec: "@every 15m0s"},
		{name: "schedule duration", opts: Options{Schedule: "10m"}, wantSpec: "@every 10m0s"},
		{name: "schedule hhmm clamped", opts: Options{Schedule: "00:01"}, wantSpec: "@every 5m0s"},
		{name: "schedule every clamped", opts: Options{Schedule: "@every 30s"}, wantSpec: "@every 5m0s"},
		{name: "cron ok", opts: Options{Schedule: "*/10 * * * *"}, wantSpec: "*/10 * * * *"},
		{name: "cron too frequent", opts: Options{Schedule: "* * * * *"}, wantErr: true},
		{name: "garbage", opts: Options{Schedule: "soon"}, wantErr: true},
	}
	p := New(Config{}, nil, nil, logx.Nop()).parser
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := newRegistration(p, taskName, tc.opts, time.Now())
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got spec %q", r.spec)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if r.spec != tc.wantSpec {
				t.Fatalf("spec = %q, want %q", r.spec, tc.wantSpec)
			}
		})
	}
}

func TestRegistrationsSurviveRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	defer kv.Close()

	first := newTestService(t, kv, StatusAvailable)
	first.Define(taskName, func(context.Context) error { return nil })
	first.Define("foreground-only", func(context.Context) error { return nil })
	if _, err := first.RegisterIfNeeded(ctx, taskName, Options{MinimumInterval: 10 * time.Minute}); err != nil {
		t.Fatal(err)
	}
	if _, err := first.RegisterIfNeeded(ctx, "foreground-only", Options{StopOnTerminate: true}); err != nil {
		t.Fatal(err)
	}

	second := newTestService(t, kv, StatusAvailable)
	second.Define(taskName, func(context.Context) error { return nil })
	second.Define("foreground-only", func(context.Context) error { return nil })
	second.Start(ctx)

	if !second.IsRegistered(taskName) {
		t.Fatal("persisted registration should be restored")
	}
	if second.IsRegistered("foreground-only") {
		t.Fatal("stop-on-terminate registrations must not persist")
	}
	snap := second.Snapshot(ctx)
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "@every 10m0s" || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}

	if !second.Unregister(ctx, taskName) {
		t.Fatal("unregister should report removal")
	}
	if p := persisted(t, kv); len(p) != 0 {
		t.Fatalf("persisted after unregister = %+v", p)
	}
}

func TestOrphanedRegistrationKept(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	defer kv.Close()

	first := newTestService(t, kv, StatusAvailable)
	first.Define("old-task", func(context.Context) error { return nil })
	_, _ = first.RegisterIfNeeded(ctx, "old-task", DefaultOptions())

	second := newTestService(t, kv, StatusAvailable)
	second.Define(taskName, func(context.Context) error { return nil })
	second.Start(ctx)
	_, _ = second.RegisterIfNeeded(ctx, taskName, Options{MinimumInterval: 5 * time.Minute})

	names := map[string]bool{}
	for _, p := range persisted(t, kv) {
		names[p.Name] = true
	}
	if !names["old-task"] || !names[taskName] {
		t.Fatalf("persisted names = %v", names)
	}
}

func TestStartOnBootRunsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t, nil, StatusAvailable)

	ran := make(chan struct{}, 4)
	s.Define(taskName, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})
	if _, err := s.RegisterIfNeeded(ctx, taskName, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	s.Start(ctx)

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("start-on-boot run did not happen")
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if len(ran) != 0 {
		t.Fatal("boot run should happen exactly once")
	}
	last, ok := s.LastRun(taskName)
	if !ok || last.Trigger != "boot" || last.Outcome != OutcomeNewData {
		t.Fatalf("last run = %+v", last)
	}
}

func TestDisabledStartDoesNothing(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, nil, nil, logx.Nop())
	var n atomic.Int32
	s.Define(taskName, func(context.Context) error { n.Add(1); return nil })
	_, _ = s.RegisterIfNeeded(context.Background(), taskName, DefaultOptions())
	s.Start(context.Background())
	if s.Snapshot(context.Background()).Started {
		t.Fatal("disabled scheduler must not start")
	}
	if n.Load() != 0 {
		t.Fatal("no boot run while disabled")
	}
}

func TestRunNowOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t, nil, StatusAvailable)

	tests := []struct {
		name   string
		action Action
		want   Outcome
	}{
		{name: "ok", action: func(context.Context) error { return nil }, want: OutcomeNewData},
		{name: "no-data", action: func(context.Context) error { return ErrNoData }, want: OutcomeNoData},
		{name: "declined", action: func(context.Context) error { return fmt.Errorf("%w: busy", ErrSkipped) }, want: OutcomeSkipped},
		{name: "error", action: func(context.Context) error { return errors.New("probe store failed") }, want: OutcomeFailed},
		{name: "panic", action: func(context.Context) error { panic("boom") }, want: OutcomeFailed},
	}
	for _, tc := range tests {
		s.Define(tc.name, tc.action)
		got, err := s.RunNow(ctx, tc.name)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: outcome = %s, want %s", tc.name, got, tc.want)
		}
	}
	if _, err := s.RunNow(ctx, "missing"); !errors.Is(err, ErrUndefined) {
		t.Fatalf("err = %v", err)
	}
	if last, _ := s.LastRun("declined"); last.Error != "" {
		t.Fatalf("declined run recorded an error: %q", last.Error)
	}
	if last, _ := s.LastRun("panic"); last.Error == "" {
		t.Fatal("panic should be recorded as an error")
	}
}

func TestRunNowOverlapSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t, nil, StatusAvailable)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.Define(taskName, func(context.Context) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan Outcome, 1)
	go func() {
		o, _ := s.RunNow(ctx, taskName)
		done <- o
	}()
	<-entered
	if o, _ := s.RunNow(ctx, taskName); o != OutcomeSkipped {
		t.Fatalf("overlapping run = %s, want skipped", o)
	}
	close(release)
	if o := <-done; o != OutcomeNewData {
		t.Fatalf("first run = %s", o)
	}
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()
	s := New(Config{HistorySize: 3}, nil, nil, logx.Nop())
	s.Define(taskName, func(context.Context) error { return nil })
	for i := 0; i < 5; i++ {
		_, _ = s.RunNow(context.Background(), taskName)
	}
	if h := s.History(); len(h) != 3 {
		t.Fatalf("history = %d, want 3", len(h))
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()
	s := New(Config{DefaultTimeout: 20 * time.Millisecond}, nil, nil, logx.Nop())
	s.Define(taskName, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if o, _ := s.RunNow(context.Background(), taskName); o != OutcomeFailed {
		t.Fatalf("outcome = %s", o)
	}
}

func TestStartPollingHandle(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, nil, logx.Nop())
	var n atomic.Int32
	h := s.StartPolling(context.Background(), "web-fallback", 10*time.Millisecond, func(context.Context) error {
		n.Add(1)
		return nil
	})

	deadline := time.Now().Add(5 * time.Second)
	for n.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("poller did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Stop()
	h.Stop()
	after := n.Load()
	time.Sleep(50 * time.Millisecond)
	if n.Load() != after {
		t.Fatal("poller kept running after Stop")
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Status{"": StatusAvailable, "Denied": StatusDenied, "restricted": StatusRestricted} {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseStatus("maybe"); err == nil {
		t.Fatal("expected error")
	}
}
