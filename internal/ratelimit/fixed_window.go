package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Fixed-window counter. Counts are monotone within a window and reset
// exactly at the window boundary, which is what plan quotas promise.
type FixedWindowLimiter struct {
	store  Store
	tier   string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewFixedWindow(store Store, tier string, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		store:  store,
		tier:   tier,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (f *FixedWindowLimiter) windowStart() int64 {
	secs := int64(f.window.Seconds())
	now := f.now().Unix()
	return now - now%secs
}

func (f *FixedWindowLimiter) key(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", f.tier, key, f.windowStart())
}

func (f *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := f.store.IncrWithTTL(ctx, f.key(key), f.window)
	if err != nil {
		return false, err
	}

	return count <= int64(f.limit), nil
}

func (f *FixedWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := f.store.Count(ctx, f.key(key))
	if err != nil {
		return 0, err
	}

	remaining := f.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

func (f *FixedWindowLimiter) Limit() int {
	return f.limit
}

func (f *FixedWindowLimiter) Window() time.Duration {
	return f.window
}

// Returns the time at which the current window's count resets
func (f *FixedWindowLimiter) Reset() time.Time {
	return time.Unix(f.windowStart()+int64(f.window.Seconds()), 0)
}
