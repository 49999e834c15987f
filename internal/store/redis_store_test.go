package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"verification-service/internal/client"
)

func newRedisKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisKV(client.NewRedisClientFromExisting(rdb)), mr
}

func TestRedisKVSetGet(t *testing.T) {
	kv, _ := newRedisKV(t)
	ctx := context.Background()

	if err := kv.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "v" {
		t.Errorf("got %q, want %q", got, "v")
	}
}

func TestRedisKVGetMissing(t *testing.T) {
	kv, _ := newRedisKV(t)

	_, err := kv.Get(context.Background(), "absent")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("got %v, want ErrKeyNotFound", err)
	}
}

func TestRedisKVTTLExpiry(t *testing.T) {
	kv, mr := newRedisKV(t)
	ctx := context.Background()

	if err := kv.Set(ctx, "k", "v", 5*time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mr.FastForward(4 * time.Minute)
	if _, err := kv.Get(ctx, "k"); err != nil {
		t.Fatalf("get before expiry failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("got %v after TTL, want ErrKeyNotFound", err)
	}
}

func TestRedisKVIncrementAndExpire(t *testing.T) {
	kv, mr := newRedisKV(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := kv.Increment(ctx, "counter")
		if err != nil {
			t.Fatalf("increment failed: %v", err)
		}
		if got != want {
			t.Errorf("increment returned %d, want %d", got, want)
		}
	}

	set, err := kv.Expire(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if !set {
		t.Error("expire on live key reported false")
	}

	mr.FastForward(2 * time.Minute)
	got, err := kv.Increment(ctx, "counter")
	if err != nil {
		t.Fatalf("increment after expiry failed: %v", err)
	}
	if got != 1 {
		t.Errorf("counter restarted at %d, want 1", got)
	}
}

func TestRedisKVDelete(t *testing.T) {
	kv, _ := newRedisKV(t)
	ctx := context.Background()

	kv.Set(ctx, "a", "1", 0)
	kv.Set(ctx, "b", "2", 0)

	removed, err := kv.Delete(ctx, "a", "b", "missing")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d keys, want 2", removed)
	}
}

func TestRedisKVKeys(t *testing.T) {
	kv, _ := newRedisKV(t)
	ctx := context.Background()

	kv.Set(ctx, "suspicious:scan:1.2.3.4", "1", 0)
	kv.Set(ctx, "suspicious:scan:5.6.7.8", "2", 0)
	kv.Set(ctx, "alert:x:1", "{}", 0)

	keys, err := kv.Keys(ctx, "suspicious:*")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %v", len(keys), keys)
	}
}

func TestRedisKVCompareAndDelete(t *testing.T) {
	kv, _ := newRedisKV(t)
	ctx := context.Background()

	kv.Set(ctx, "code", "123456", 0)
	kv.Set(ctx, "code:attempts", "2", 0)

	deleted, err := kv.CompareAndDelete(ctx, "code", "999999", "code:attempts")
	if err != nil {
		t.Fatalf("compare-and-delete failed: %v", err)
	}
	if deleted {
		t.Error("mismatched value was deleted")
	}

	deleted, err = kv.CompareAndDelete(ctx, "code", "123456", "code:attempts")
	if err != nil {
		t.Fatalf("compare-and-delete failed: %v", err)
	}
	if !deleted {
		t.Error("matching value was not deleted")
	}
	if _, err := kv.Get(ctx, "code"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("key survived consume: %v", err)
	}
	if _, err := kv.Get(ctx, "code:attempts"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("companion key survived consume: %v", err)
	}
}
