// Package ratelimit implements fixed-window rate limiting keyed by an
// arbitrary string, usually a user id or a client IP.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default read receipt limits: 10 batches per user per second.
const (
	DefaultLimit  = 10
	DefaultWindow = time.Second
)

// Limiter decides whether one more action is allowed for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Factory builds a limiter with the given limit and window. The HTTP
// middleware uses it to create one limiter per route.
type Factory func(limit int, window time.Duration) Limiter

// sweepThreshold is the number of tracked keys above which expired windows
// are dropped on the next call.
const sweepThreshold = 4096

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps one window per key in process memory.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter creates a limiter allowing limit actions per window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return newMemoryLimiter(limit, window, time.Now)
}

func newMemoryLimiter(limit int, w time.Duration, now func() time.Time) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if w <= 0 {
		w = DefaultWindow
	}
	return &MemoryLimiter{
		limit:   limit,
		window:  w,
		now:     now,
		windows: make(map[string]*window),
	}
}

// Allow resets the key's window once it has elapsed, rejects when the window
// is full, and otherwise counts the action. A rejected call is not counted.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.windows) > sweepThreshold {
		l.sweep(now)
	}

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now}
		l.windows[key] = w
	}
	if now.Sub(w.start) >= l.window {
		w.start = now
		w.count = 0
	}
	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
}

// MemoryFactory returns a Factory producing in-memory limiters.
func MemoryFactory() Factory {
	return func(limit int, window time.Duration) Limiter {
		return NewMemoryLimiter(limit, window)
	}
}
