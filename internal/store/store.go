// Package store provides the key-value abstraction that OTP and monitoring
// state lives in. Two backends exist: Redis for production and an in-memory
// map for development and tests. Both honor the same expiry semantics.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when a key is absent or its TTL elapsed.
var ErrKeyNotFound = errors.New("key not found")

// KV is the uniform contract both backends implement.
//
// Set with ttl <= 0 stores the value without expiry. Increment creates the
// key at zero before incrementing and implies no TTL; callers that need a
// bounded counter must call Expire separately. Keys matches a glob-style
// pattern ('*' wildcard).
//
// CompareAndDelete atomically deletes key (and any additional keys) only if
// its current value equals expected, and reports whether the delete happened.
// Verification uses it to consume a code exactly once under concurrency.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int, error)
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	CompareAndDelete(ctx context.Context, key, expected string, also ...string) (bool, error)
}
