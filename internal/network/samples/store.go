package samples

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"trackify/internal/storage"
	logx "trackify/pkg/logx"
)

// DefaultKey is the storage key holding the record.
const DefaultKey = "network_stats_cache"

// ErrCorruptRecord is returned when the stored record cannot be decoded.
var ErrCorruptRecord = errors.New("samples: corrupt record")

// Store reads and writes the single persisted record.
//
// It is safe for concurrent use within one process.
type Store struct {
	kv        storage.KV
	key       string
	retention Retention
	now       func() time.Time
	log       logx.Logger

	mu sync.Mutex
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if k := strings.TrimSpace(key); k != "" {
			s.key = k
		}
	}
}

func WithRetention(r Retention) Option { return func(s *Store) { s.retention = r } }

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(s *Store) { s.log = log } }

func NewStore(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		key:       DefaultKey,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "samples"))
	return s
}

// SetRetention replaces the retention policy applied by later writes.
func (s *Store) SetRetention(r Retention) {
	s.mu.Lock()
	s.retention = r
	s.mu.Unlock()
}

// Key returns the storage key in use.
func (s *Store) Key() string { return s.key }

// ReadRecord returns the stored envelope, or nil if nothing is stored.
func (s *Store) ReadRecord(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx)
}

// ReadSnapshot returns the stored snapshot, or nil if nothing is stored.
// A record that cannot be decoded yields an error wrapping ErrCorruptRecord.
func (s *Store) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	rec, err := s.ReadRecord(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Data, nil
}

// WriteSnapshot replaces the stored record. snap itself is not modified.
func (s *Store) WriteSnapshot(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.writeLocked(ctx, snap)
	return err
}

// AppendSample adds one sample to the stored list. Missing or corrupt prior
// data is treated as an empty snapshot.
func (s *Store) AppendSample(ctx context.Context, sample Sample) error {
	return s.AppendSamples(ctx, sample)
}

// AppendSamples adds samples in order under a single read-modify-write.
func (s *Store) AppendSamples(ctx context.Context, samples ...Sample) error {
	if len(samples) == 0 {
		return nil
	}
	_, err := s.Update(ctx, func(prev *Snapshot) (*Snapshot, error) {
		next := prev
		if next == nil {
			next = Empty()
		}
		next.DailySummary = append(next.DailySummary, samples...)
		return next, nil
	})
	return err
}

// Update runs fn against the current snapshot (nil when absent or corrupt)
// and persists what it returns. fn runs with the store lock held and must not
// call back into the Store. Returning a nil snapshot leaves the record as is.
func (s *Store) Update(ctx context.Context, fn func(prev *Snapshot) (*Snapshot, error)) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *Snapshot
	rec, err := s.readLocked(ctx)
	switch {
	case errors.Is(err, ErrCorruptRecord):
		s.log.Warn("discarding corrupt record", logx.String("key", s.key), logx.Err(err))
	case err != nil:
		return nil, err
	case rec != nil:
		prev = rec.Data.Clone()
	}

	next, err := fn(prev)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return prev, nil
	}
	return s.writeLocked(ctx, next)
}

// Clear removes the stored record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("remove %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) readLocked(ctx context.Context) (*Record, error) {
	b, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	if !ok || len(b) == 0 {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Data == nil {
		return nil, nil
	}
	if rec.Data.DailySummary == nil {
		rec.Data.DailySummary = []Sample{}
	}
	return &rec, nil
}

// writeLocked persists a retention-trimmed copy of snap and returns it.
func (s *Store) writeLocked(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	if snap == nil {
		return nil, errors.New("samples: nil snapshot")
	}
	now := s.now()
	out := snap.Clone()
	out.DailySummary = s.retention.Apply(out.DailySummary, now)
	if out.DailySummary == nil {
		out.DailySummary = []Sample{}
	}
	b, err := json.Marshal(Record{Data: out, Timestamp: now.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, b); err != nil {
		return nil, fmt.Errorf("write %s: %w", s.key, err)
	}
	return out, nil
}
