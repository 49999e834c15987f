package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"verification-service/internal/client"
)

// compareAndDeleteScript deletes all KEYS if KEYS[1] currently holds ARGV[1].
// Keeps the read-compare-delete of verification atomic on the server.
const compareAndDeleteScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', unpack(KEYS))
end
return 0
`

// RedisKV is the production backend over the shared Redis client wrapper.
type RedisKV struct {
	client *client.RedisClient
}

func NewRedisKV(redisClient *client.RedisClient) *RedisKV {
	return &RedisKV{client: redisClient}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return "", err
	}
	return value, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, value, ttl)
}

func (r *RedisKV) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := r.client.Del(ctx, keys...)
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (r *RedisKV) Increment(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key)
}

func (r *RedisKV) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.Expire(ctx, key, ttl)
}

func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.client.Scan(ctx, pattern, 1000)
}

func (r *RedisKV) CompareAndDelete(ctx context.Context, key, expected string, also ...string) (bool, error) {
	keys := append([]string{key}, also...)
	result, err := r.client.Eval(ctx, compareAndDeleteScript, keys, expected)
	if err != nil {
		return false, fmt.Errorf("compare-and-delete failed: %w", err)
	}
	deleted, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected compare-and-delete result type %T", result)
	}
	return deleted > 0, nil
}
