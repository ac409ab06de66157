package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures the Redis cache.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix     string
	defaultTTL time.Duration
}

// WithDefaultTTL sets the expiration used when Set is called with a
// zero TTL. Default: 1 minute.
func WithDefaultTTL(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.defaultTTL = d
	}
}

// WithPrefix sets a key prefix for all cache operations. Keys are
// stored as "{prefix}:{key}" to namespace caches sharing one Redis
// instance.
func WithPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		o.prefix = prefix
	}
}

// Redis is a cache backed by Redis, serializing values as JSON.
type Redis[V any] struct {
	client    redis.UniversalClient
	opts      *redisOptions
	marshaler jsonMarshaler[V]
}

// NewRedis creates a new Redis-backed cache.
// The client should be obtained from pkg/redis.Open.
func NewRedis[V any](client redis.UniversalClient, opts ...RedisOption) *Redis[V] {
	o := &redisOptions{defaultTTL: time.Minute}
	for _, opt := range opts {
		opt(o)
	}
	return &Redis[V]{client: client, opts: o}
}

// Get retrieves a value by key from Redis.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V

	data, err := r.client.Get(ctx, r.prefixedKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrNotFound
		}
		return zero, err
	}

	return r.marshaler.Unmarshal(data)
}

// Set stores a value in Redis with the given TTL.
func (r *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	data, err := r.marshaler.Marshal(value)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = r.opts.defaultTTL
	}
	return r.client.Set(ctx, r.prefixedKey(key), data, ttl).Err()
}

// Delete removes a key from Redis.
func (r *Redis[V]) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefixedKey(key)).Err()
}

func (r *Redis[V]) prefixedKey(key string) string {
	if r.opts.prefix == "" {
		return key
	}
	return r.opts.prefix + ":" + key
}
