package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores values in Redis under a key prefix. Keys never expire on their own;
// session expiry is enforced by the token, not by the store.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
	owned  bool
}

// NewRedisBackend wraps an existing client. The client is not closed by [RedisBackend.Close].
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{redis: client, prefix: prefix}
}

// RedisOpener returns an [Opener] that dials addr and pings it before handing out the backend.
// The backend owns the client and closes it on Close.
func RedisOpener(addr, password string, db int, prefix string) Opener {
	return func(ctx context.Context) (Backend, error) {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", addr, err)
		}

		return &RedisBackend{redis: client, prefix: prefix, owned: true}, nil
	}
}

func (r *RedisBackend) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.redis.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	return r.redis.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.redis.Del(ctx, r.key(key)).Err()
}

func (r *RedisBackend) Close() error {
	if !r.owned {
		return nil
	}
	return r.redis.Close()
}
