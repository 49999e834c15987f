package store

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"verification-service/internal/util"
)

// MemoryKV is the development backend: a map plus a parallel expiry map.
// A background sweep removes expired entries on a fixed interval; reads
// additionally check expiry lazily so a sweep miss never returns stale data.
type MemoryKV struct {
	mu      sync.Mutex
	data    map[string]string
	expiry  map[string]time.Time
	now     func() time.Time
	stop    chan struct{}
	stopped sync.Once
}

// NewMemoryKV creates the in-memory backend and starts its sweep loop.
// sweepInterval <= 0 disables the background sweep (lazy expiry still applies).
func NewMemoryKV(sweepInterval time.Duration) *MemoryKV {
	kv := &MemoryKV{
		data:   make(map[string]string),
		expiry: make(map[string]time.Time),
		now:    time.Now,
		stop:   make(chan struct{}),
	}

	if sweepInterval > 0 {
		go kv.sweepLoop(sweepInterval)
	}

	return kv
}

// SetClock replaces the time source. Tests use this to simulate TTL expiry.
func (m *MemoryKV) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Close stops the background sweep.
func (m *MemoryKV) Close() {
	m.stopped.Do(func() { close(m.stop) })
}

func (m *MemoryKV) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := m.sweep()
			if removed > 0 {
				util.Debug("Memory store sweep completed", zap.Int("removed", removed))
			}
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryKV) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, deadline := range m.expiry {
		if !deadline.After(now) {
			delete(m.data, key)
			delete(m.expiry, key)
			removed++
		}
	}
	return removed
}

// expired reports and removes a lapsed entry. Callers must hold the lock.
func (m *MemoryKV) expired(key string) bool {
	deadline, ok := m.expiry[key]
	if !ok {
		return false
	}
	if deadline.After(m.now()) {
		return false
	}
	delete(m.data, key)
	delete(m.expiry, key)
	return true
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	value, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return value, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	if ttl > 0 {
		m.expiry[key] = m.now().Add(ttl)
	} else {
		delete(m.expiry, key)
	}
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if m.expired(key) {
			continue
		}
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			delete(m.expiry, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryKV) Increment(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expired(key)

	current := int64(0)
	if raw, ok := m.data[key]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer: %w", key, err)
		}
		current = parsed
	}

	current++
	m.data[key] = strconv.FormatInt(current, 10)
	return current, nil
}

func (m *MemoryKV) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		return false, nil
	}
	if _, ok := m.data[key]; !ok {
		return false, nil
	}
	m.expiry[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var matched []string
	for key := range m.data {
		if deadline, ok := m.expiry[key]; ok && !deadline.After(now) {
			delete(m.data, key)
			delete(m.expiry, key)
			continue
		}
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			matched = append(matched, key)
		}
	}
	return matched, nil
}

func (m *MemoryKV) CompareAndDelete(_ context.Context, key, expected string, also ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key) {
		return false, nil
	}
	value, ok := m.data[key]
	if !ok || value != expected {
		return false, nil
	}

	delete(m.data, key)
	delete(m.expiry, key)
	for _, extra := range also {
		delete(m.data, extra)
		delete(m.expiry, extra)
	}
	return true, nil
}
