package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/airflow-health/internal/logger"
)

const clearScanBatch = 200

// RedisStore is a Store backed by Redis. Every key is namespaced with a
// prefix so ClearAll only touches keys this service owns. Redis failures
// degrade to misses and dropped writes; the dashboard keeps serving.
type RedisStore struct {
	client *redis.Client
	prefix string
	log    logger.Logger
}

// NewRedisStore wraps an existing Redis client. An empty prefix defaults
// to "airflow-health:".
func NewRedisStore(client *redis.Client, prefix string, log logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = "airflow-health:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		log:    log,
	}
}

// Get returns the value for key, treating redis.Nil and any backend error
// as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("Redis get failed, treating as miss",
				logger.String("key", key),
				logger.Error(err),
			)
		}
		return nil, false
	}
	return value, true
}

// Put writes key with the given TTL. Redis SET is atomic, so concurrent
// readers never observe a torn value. A failed write is logged and dropped.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		s.log.Warn("Redis set failed, dropping write",
			logger.String("key", key),
			logger.Error(err),
		)
	}
}

// ClearAll deletes every key under the store's prefix using SCAN, so it
// stays safe against a Redis database shared with other services.
func (s *RedisStore) ClearAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", clearScanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
