package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalStore hands out one in-process token bucket per key. It sits in
// front of the shared-store checks so a traffic spike is absorbed without
// a Redis round trip per rejected request. Idle buckets are swept.
type LocalStore struct {
	mu           sync.Mutex
	entries      map[string]*localEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type LocalOption func(*LocalStore)

func WithLocalIdleTTL(d time.Duration) LocalOption {
	return func(s *LocalStore) { s.idleTTL = d }
}

func WithLocalCleanupEvery(d time.Duration) LocalOption {
	return func(s *LocalStore) { s.cleanupEvery = d }
}

func NewLocalStore(rps float64, burst int, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		entries:      make(map[string]*localEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalStore) Get(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &localEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *LocalStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// Sweeps idle buckets until the context is cancelled.
func (s *LocalStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
