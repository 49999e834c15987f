// Package ratelimit throttles OTP issuance. It is deliberately separate from
// the KV-store-backed monitoring counters: this limiter gates the issue path
// only, with its own in-process fixed-window state.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by Consume when the window budget is exhausted.
var ErrRateLimited = errors.New("rate limited")

type window struct {
	start time.Time
	used  int
}

// Limiter allows at most Points operations per identifier within each
// fixed Window. Identifiers are channel-prefixed, e.g. "email:user@x.com".
type Limiter struct {
	mu      sync.Mutex
	points  int
	window  time.Duration
	now     func() time.Time
	buckets map[string]*window
	ops     int
}

func New(points int, windowSize time.Duration) *Limiter {
	return &Limiter{
		points:  points,
		window:  windowSize,
		now:     time.Now,
		buckets: make(map[string]*window),
	}
}

// SetClock replaces the time source for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Consume takes one point for the identifier, or fails with ErrRateLimited.
func (l *Limiter) Consume(identifier string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	l.ops++
	if l.ops%1024 == 0 {
		l.prune(now)
	}

	b, ok := l.buckets[identifier]
	if !ok || !b.start.Add(l.window).After(now) {
		l.buckets[identifier] = &window{start: now, used: 1}
		return nil
	}

	if b.used >= l.points {
		return ErrRateLimited
	}
	b.used++
	return nil
}

// Remaining reports the points left in the identifier's current window.
func (l *Limiter) Remaining(identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[identifier]
	if !ok || !b.start.Add(l.window).After(l.now()) {
		return l.points
	}
	if b.used >= l.points {
		return 0
	}
	return l.points - b.used
}

// prune drops windows that have fully elapsed. Callers must hold the lock.
func (l *Limiter) prune(now time.Time) {
	for id, b := range l.buckets {
		if !b.start.Add(l.window).After(now) {
			delete(l.buckets, id)
		}
	}
}
