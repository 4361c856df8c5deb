package ratelimit

import (
	"context"
	"time"
)

// Store is the shared counter backing the limiters. Counts are kept out of
// process memory so every gateway instance sees the same windows.
type Store interface {
	// IncrWithTTL atomically increments key and arms its expiry, returning
	// the count after the increment.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Count returns the current count for key, 0 when absent or expired.
	Count(ctx context.Context, key string) (int64, error)
}
