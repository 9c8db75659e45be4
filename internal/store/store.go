package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/thermocert/thermocert/pkg/types"
)

// ErrNotFound is returned for an unknown result ID.
var ErrNotFound = errors.New("store: result not found")

// Entry is a result together with its bookkeeping times. Callers must treat
// Result as read-only; changes go through Update.
type Entry struct {
	Result    *types.TestResult
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Persister writes results through to durable storage.
type Persister interface {
	Save(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id string) error
}

// Store is a thread-safe in-memory result store, keyed by result ID.
type Store struct {
	mu      sync.RWMutex
	data    map[string]*Entry
	ttl     time.Duration
	persist Persister
	now     func() time.Time // injectable for deterministic tests
}

// Option configures a Store.
type Option func(*Store)

// WithPersister writes every Put and Update through to p.
func WithPersister(p Persister) Option { return func(s *Store) { s.persist = p } }

// New creates a Store with the given TTL. A zero TTL disables expiry.
func New(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Put stores res under res.ID, replacing any previous result with that ID.
// Callers must not modify res after calling Put.
func (s *Store) Put(ctx context.Context, res *types.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e := &Entry{Result: res, CreatedAt: now, UpdatedAt: now}
	if prev, ok := s.data[res.ID]; ok {
		e.CreatedAt = prev.CreatedAt
	}
	if s.persist != nil {
		if err := s.persist.Save(ctx, e); err != nil {
			return err
		}
	}
	s.data[res.ID] = e
	return nil
}

// Restore inserts entries loaded from durable storage without writing them
// back. Existing IDs are overwritten.
func (s *Store) Restore(entries []*Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.data[e.Result.ID] = e
	}
}

// Get returns the entry for id and whether it was found. The entry may be
// stale if the TTL has elapsed and Run has not evicted it yet.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	return e, ok
}

// Update replaces the result id with fn's return value. fn runs with the
// store locked and must not call back into the Store. If fn fails, nothing
// changes.
func (s *Store) Update(ctx context.Context, id string, fn func(*types.TestResult) (*types.TestResult, error)) (*types.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := fn(cur.Result)
	if err != nil {
		return nil, err
	}
	e := &Entry{Result: next, CreatedAt: cur.CreatedAt, UpdatedAt: s.now()}
	if s.persist != nil {
		if err := s.persist.Save(ctx, e); err != nil {
			return nil, err
		}
	}
	s.data[id] = e
	return next, nil
}

// List returns all live entries, oldest first.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, s.now()) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Result.ID < out[j].Result.ID
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.UpdatedAt.After(now.Add(-s.ttl))
}

// Evict removes entries whose UpdatedAt is older than now minus TTL and
// returns how many were removed. Evicted entries are also deleted from the
// persister, if any.
func (s *Store) Evict(ctx context.Context, now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if s.live(e, now) {
			continue
		}
		delete(s.data, id)
		removed++
		if s.persist != nil {
			if err := s.persist.Delete(ctx, id); err != nil {
				slog.Error("store: delete evicted result", "id", id, "err", err)
			}
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled. With a zero TTL it
// only waits for ctx.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(ctx, now); n > 0 {
				slog.Debug("store: evicted stale results", "count", n)
			}
		}
	}
}
