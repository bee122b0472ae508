package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	logx "trackify/pkg/logx"
)

// Handle owns a foreground polling loop started by StartPolling.
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Name is the polling loop name.
func (h *Handle) Name() string { return h.name }

// Stop ends the loop and waits for an in-progress tick to return. Calling
// Stop more than once is safe.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// StartPolling runs fn every interval until ctx ends or the returned handle
// is stopped. fn also runs once immediately. Ticks that would overlap a
// running fn are dropped.
func (s *Service) StartPolling(ctx context.Context, name string, every time.Duration, fn Action) *Handle {
	if every <= 0 {
		every = MinimumInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{name: name, cancel: cancel, done: make(chan struct{})}
	log := s.log.With(logx.String("poller", name))

	go func() {
		defer close(h.done)
		t := time.NewTicker(every)
		defer t.Stop()

		tick := func() {
			err := safeRun(ctx, fn)
			switch {
			case err == nil || ctx.Err() != nil:
			case errors.Is(err, ErrSkipped):
				log.Debug("poll skipped", logx.Err(err))
			default:
				log.Warn("poll failed", logx.Err(err))
			}
		}
		tick()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick()
			}
		}
	}()
	log.Debug("polling started", logx.Duration("every", every))
	return h
}
