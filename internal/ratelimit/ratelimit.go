// Package ratelimit implements a sliding-window failure counter keyed by
// caller identity, used to lock out repeated wrong invite PINs.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists hit timestamps per key. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append records a hit at the given instant.
	Append(ctx context.Context, key string, at time.Time) error
	// Since returns the hits for key at or after since, oldest first.
	Since(ctx context.Context, key string, since time.Time) ([]time.Time, error)
	// Clear forgets every hit for key.
	Clear(ctx context.Context, key string) error
	// Prune drops hits older than before and returns how many keys were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// MemoryStore keeps hits in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time)}
}

func (s *MemoryStore) Append(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits := append(s.hits[key], at)
	sort.Slice(hits, func(i, j int) bool { return hits[i].Before(hits[j]) })
	s.hits[key] = hits
	return nil
}

func (s *MemoryStore) Since(_ context.Context, key string, since time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, at := range s.hits[key] {
		if !at.Before(since) {
			out = append(out, at)
		}
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.hits, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, hits := range s.hits {
		kept := hits[:0]
		for _, at := range hits {
			if !at.Before(before) {
				kept = append(kept, at)
			}
		}
		if len(kept) == 0 {
			delete(s.hits, key)
			removed++
			continue
		}
		s.hits[key] = kept
	}
	return removed, nil
}

// Limiter blocks a key once it has accumulated Limit failures inside Window.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewLimiter constructs a limiter over store. A nil store gets a MemoryStore.
func NewLimiter(store Store, limit int, window time.Duration, now func() time.Time) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: store, limit: limit, window: window, now: now}
}

// Check reports whether key is locked out and for how long.
func (l *Limiter) Check(ctx context.Context, key string) (locked bool, retryAfter time.Duration, err error) {
	now := l.now()
	hits, err := l.store.Since(ctx, key, now.Add(-l.window))
	if err != nil {
		return false, 0, err
	}
	if len(hits) < l.limit {
		return false, 0, nil
	}
	// The lock lifts when enough of the oldest hits leave the window.
	release := hits[len(hits)-l.limit].Add(l.window)
	retryAfter = release.Sub(now)
	if retryAfter <= 0 {
		return false, 0, nil
	}
	return true, retryAfter, nil
}

// Fail records a failed attempt for key.
func (l *Limiter) Fail(ctx context.Context, key string) error {
	return l.store.Append(ctx, key, l.now())
}

// Reset forgets failures for key, typically after a successful attempt.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Clear(ctx, key)
}

// Prune discards hits that can no longer affect any decision.
func (l *Limiter) Prune(ctx context.Context) (int, error) {
	return l.store.Prune(ctx, l.now().Add(-l.window))
}
