package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisStore keeps entries in Redis with native key expiry.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedis connects using a redis:// URL.
func NewRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(c redis.UniversalClient) *RedisStore {
	return &RedisStore{client: c}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "redis: get %s", key)
	}
	return b, true, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return eris.Wrapf(r.client.Set(ctx, key, value, ttl).Err(), "redis: set %s", key)
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return eris.Wrapf(r.client.Del(ctx, key).Err(), "redis: del %s", key)
}

func (r *RedisStore) Close() error { return r.client.Close() }
