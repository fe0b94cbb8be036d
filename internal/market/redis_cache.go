package market

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore backs the aggregator cache with Redis so multiple guardian
// processes can share one price cache. TTL enforcement is delegated to Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

// NewRedisStore creates a Redis-backed cache store
func NewRedisStore(client *redis.Client, prefix string, log zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "guardian:market:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "redis_cache").Logger(),
	}
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, key string, _ time.Duration) ([]byte, bool) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		// A degraded cache must not take the aggregator down with it.
		s.log.Warn().Err(err).Str("key", key).Msg("Redis cache lookup failed")
		return nil, false
	}
	return value, true
}

// Set implements Store
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Redis cache write failed")
		return err
	}
	return nil
}

// Ping verifies the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
