// Package ratelimit provides fixed-window request counters keyed by an
// arbitrary string (wallet address for relay requests, client IP for public
// endpoints).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter charges one unit against key and reports whether the request is
// still within the window budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type window struct {
	count   int
	startAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.startAt) >= l.period {
		l.windows[key] = &window{count: 1, startAt: now}
		return true, nil
	}

	w.count++
	return w.count <= l.limit, nil
}
