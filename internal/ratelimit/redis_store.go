package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockroomhq/inventory-gateway/internal/storage"
)

// Redis-backed counter store, shared across gateway instances.
type RedisStore struct {
	redis *storage.RedisClient
}

func NewRedisStore(client *storage.RedisClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.redis.IncrWithTTL(ctx, key, ttl)
}

func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	val, err := s.redis.Get(ctx, key)
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, err
	}

	return count, nil
}
