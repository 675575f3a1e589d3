package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter throttles requests per key (typically the caller IP).
// Implementations never return an error to callers: a broken backing store
// fails open so the tap flow keeps working.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

type window struct {
	count int
	start time.Time
}

// MemoryLimiter is a per-key sliding window held in process memory.
// It is injected, not package-level, so tests and multi-limiter setups work;
// a janitor goroutine sweeps stale windows to bound growth.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*window

	limit  int
	period time.Duration

	now  func() time.Time
	stop chan struct{}
}

func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		entries: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.Sub(e.start) > l.period {
		l.entries[key] = &window{count: 1, start: now}
		return true
	}
	if e.count >= l.limit {
		return false
	}
	e.count++
	return true
}

// Close stops the sweep goroutine.
func (l *MemoryLimiter) Close() {
	close(l.stop)
}

func (l *MemoryLimiter) janitor() {
	ticker := time.NewTicker(l.period * 10)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if now.Sub(e.start) > l.period {
			delete(l.entries, key)
		}
	}
}
