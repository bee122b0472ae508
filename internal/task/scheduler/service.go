package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"trackify/internal/metrics"
	"trackify/internal/storage"
	logx "trackify/pkg/logx"
)

const defaultHistorySize = 50

type registration struct {
	name         string
	spec         string
	opts         Options
	registeredAt time.Time
	entryID      cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	loc     *time.Location
	policy  Policy
	kv      storage.KV
	metrics *metrics.Collector
	now     func() time.Time

	parser cron.Parser
	c      *cron.Cron

	actions map[string]Action
	regs    map[string]*registration
	states  map[string]*runState
	// orphans are persisted registrations without a definition.
	orphans []persistedRegistration

	runCtx    context.Context
	runCancel context.CancelFunc
	bootWG    sync.WaitGroup

	hmu     sync.Mutex
	history []Run
}

type Option func(*Service)

func WithMetrics(c *metrics.Collector) Option { return func(s *Service) { s.metrics = c } }

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a scheduler. kv may be nil, in which case registrations are not
// persisted across restarts.
func New(cfg Config, policy Policy, kv storage.KV, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if policy == nil {
		policy = StaticPolicy(StatusAvailable)
	}
	s := &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		policy: policy,
		kv:     kv,
		now:    time.Now,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		actions: map[string]Action{},
		regs:    map[string]*registration{},
		states:  map[string]*runState{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Define installs the body of a task. Redefining replaces the body.
func (s *Service) Define(name string, action Action) {
	name = strings.TrimSpace(name)
	if name == "" || action == nil {
		return
	}
	s.mu.Lock()
	s.actions[name] = action
	if _, ok := s.states[name]; !ok {
		s.states[name] = &runState{}
	}
	s.mu.Unlock()
}

// Status asks the policy for the current background status.
func (s *Service) Status(ctx context.Context) Status {
	return s.policy.Status(ctx)
}

// Start begins triggering, restores persisted registrations and runs the
// start-on-boot tasks once.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}

	s.restoreLocked(ctx)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, r := range s.regs {
		if err := s.addCronLocked(r); err != nil {
			s.log.Error("schedule register failed", logx.String("name", r.name), logx.String("spec", r.spec), logx.Err(err))
		}
	}
	s.c.Start()

	boot := 0
	for _, r := range s.regs {
		if !r.opts.StartOnBoot {
			continue
		}
		boot++
		name := r.name
		runCtx := s.runCtx
		s.bootWG.Add(1)
		go func() {
			defer s.bootWG.Done()
			s.invoke(runCtx, name, "boot")
		}()
	}
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.regs)), logx.Int("boot_runs", boot))
}

// Stop stops triggering and cancels in-flight runs. Persisted registrations
// survive and are restored by the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	for _, r := range s.regs {
		r.entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.bootWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out waiting for running tasks")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Apply updates the config. A timezone change restarts cron with the new
// location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || oldTZ == strings.TrimSpace(cfg.Timezone) {
		s.mu.Unlock()
		return
	}
	// Stop scheduling on the old cron now; wait for its running jobs after
	// releasing the lock since they take it too.
	stopped := s.c.Stop()
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, r := range s.regs {
		_ = s.addCronLocked(r)
	}
	s.c.Start()
	n := len(s.regs)
	s.mu.Unlock()

	<-stopped.Done()
	s.log.Info("service restarted", logx.String("tz", loc.String()), logx.Int("schedules", n))
}

func (s *Service) addCronLocked(r *registration) error {
	name := r.name
	runCtx := s.runCtx
	job := cron.FuncJob(func() {
		s.invoke(runCtx, name, "schedule")
	})

	if every, ok := everyOf(r.spec); ok {
		sched := cron.Schedule(cron.Every(every))
		if s.cfg.StartupSpread {
			var jitter time.Duration
			sched, jitter = spreadInterval(every, s.now(), name)
			s.log.Debug("startup spread applied", logx.String("name", name), logx.Duration("jitter", jitter))
		}
		r.entryID = s.c.Schedule(sched, job)
		return nil
	}

	eid, err := s.c.AddJob(r.spec, job)
	if err != nil {
		return err
	}
	r.entryID = eid
	return nil
}

func everyOf(spec string) (time.Duration, bool) {
	spec = strings.TrimSpace(spec)
	if !strings.HasPrefix(spec, "@every") {
		return 0, false
	}
	every, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every")))
	if err != nil || every <= 0 {
		return 0, false
	}
	return every, true
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) sortedRegsLocked() []*registration {
	out := make([]*registration, 0, len(s.regs))
	for _, r := range s.regs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
