package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "trackify/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// The whole keyspace lives in one JSON document which is rewritten through a
// temp file + rename on every mutation. Values must be UTF-8 text (the network
// core only stores JSON).
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	entries map[string]fileEntry
	closed  bool
}

type fileDocument struct {
	V       int                  `json:"v"`
	Entries map[string]fileEntry `json:"entries"`
}

type fileEntry struct {
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"` // unix milli
}

const fileSchemaVersion = 1

func openFile(cfg Config, log logx.Logger) (KV, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	entries, err := loadFileDocument(path)
	if err != nil {
		// A damaged document must not brick the app: start empty and keep the
		// broken file aside for inspection.
		aside := path + ".corrupt"
		_ = os.Rename(path, aside)
		log.Warn("storage document unreadable; starting empty", logx.String("path", path), logx.String("moved_to", aside), logx.Err(err))
		entries = map[string]fileEntry{}
	}
	log.Debug("storage opened", logx.String("driver", "file"), logx.String("path", path), logx.Int("keys", len(entries)))

	return &fileStore{log: log, path: path, entries: entries}, nil
}

func loadFileDocument(path string) (map[string]fileEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]fileEntry{}, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return map[string]fileEntry{}, nil
	}
	var doc fileDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]fileEntry{}
	}
	return doc.Entries, nil
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(e.Value), true, nil
}

func (s *fileStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.entries[key]
	s.entries[key] = fileEntry{Value: string(value), UpdatedAt: time.Now().UnixMilli()}
	if err := s.flushLocked(); err != nil {
		// Keep memory and disk consistent.
		if had {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

func (s *fileStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.entries[key]
	if !had {
		return nil
	}
	delete(s.entries, key)
	if err := s.flushLocked(); err != nil {
		s.entries[key] = prev
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) flushLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp store file: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(fileDocument{V: fileSchemaVersion, Entries: s.entries}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode store file: %w", err)
	}
	_ = f.Sync()
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
