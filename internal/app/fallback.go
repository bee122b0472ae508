package app

import (
	"context"
	"sync"
	"time"

	"trackify/internal/task/scheduler"
	logx "trackify/pkg/logx"
)

// foreground holds the in-process polling loop used when background
// registration is not allowed. At most one loop runs.
type foreground struct {
	mu    sync.Mutex
	h     *scheduler.Handle
	every time.Duration
}

// ensure starts a loop at every, replacing one that runs at another interval.
func (f *foreground) ensure(ctx context.Context, s *scheduler.Service, every time.Duration, fn scheduler.Action, log logx.Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.h != nil && f.every == every {
		select {
		case <-f.h.Done():
		default:
			return
		}
	}
	if f.h != nil {
		f.h.Stop()
	}
	f.h = s.StartPolling(ctx, TaskName, every, fn)
	f.every = every
	log.Info("foreground polling started", logx.String("name", TaskName), logx.Duration("every", every))
}

func (f *foreground) stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.h == nil {
		return false
	}
	f.h.Stop()
	f.h, f.every = nil, 0
	return true
}

func (f *foreground) running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.h == nil {
		return false
	}
	select {
	case <-f.h.Done():
		return false
	default:
		return true
	}
}
