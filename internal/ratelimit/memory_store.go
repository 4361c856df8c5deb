package ratelimit

import (
	"context"
	"sync"
	"time"
)

// In-process counter store for tests and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
	now     func() time.Time
}

type memBucket struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*memBucket),
		now:     time.Now,
	}
}

func (s *MemoryStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.expiresAt) {
		b = &memBucket{expiresAt: now.Add(ttl)}
		s.buckets[key] = b
	}

	b.count++
	return b.count, nil
}

func (s *MemoryStore) Count(ctx context.Context, key string) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.expiresAt) {
		return 0, nil
	}

	return b.count, nil
}
