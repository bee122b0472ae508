package config

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "trackify/pkg/logx"
)

const (
	watchRetryMin   = 250 * time.Millisecond
	watchRetryMax   = 5 * time.Second
	validateTimeout = 5 * time.Second
)

var errWatcherClosed = errors.New("watcher closed")

// Watch reloads the file whenever its directory reports a change to it,
// until ctx ends. Bursts of events within the debounce window cause one
// reload. A broken watcher is recreated with jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	retry := watchRetryMin

	for {
		err := m.watchOnce(ctx, dir, name, func() { retry = watchRetryMin })
		if ctx.Err() != nil {
			return nil
		}
		wait := retry + rand.N(retry/2+1)
		retry = min(retry*2, watchRetryMax)
		m.logger().Warn("config watcher failed; retrying",
			logx.String("dir", dir), logx.Duration("backoff", wait), logx.Err(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (m *Manager) watchOnce(ctx context.Context, dir, name string, healthy func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	healthy()
	m.logger().Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-debounce.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if strings.EqualFold(filepath.Base(ev.Name), name) && ev.Op != 0 {
				debounce.Reset(m.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.logger().Warn("config watch overflow; forcing reload", logx.Err(err))
				debounce.Reset(m.debounce)
				continue
			}
			if err != nil {
				m.logger().Warn("config watch error", logx.Err(err))
			}
		}
	}
}

// reload commits and publishes the file when it parses, validates and
// differs from the committed config.
func (m *Manager) reload(ctx context.Context) {
	log := m.logger()
	cfg, err := m.Parse()
	if err != nil {
		log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return
	}

	sum := checksum(cfg)
	m.mu.RLock()
	same, validate := sum != 0 && sum == m.sum, m.validit
	m.mu.RUnlock()
	if same {
		log.Debug("config unchanged", logx.String("path", m.path))
		return
	}

	if validate != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := validate(vctx, cfg)
		cancel()
		if err != nil {
			log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	log.Info("config reloaded", logx.String("path", m.path), logx.String("checksum", fmt.Sprintf("%016x", sum)))
}
