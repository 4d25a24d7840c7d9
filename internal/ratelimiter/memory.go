package ratelimiter

import (
	"context"
	"sync"
	"time"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/metrics"
)

// InMemoryLimiter implements Limiter with a mutex-protected slice per
// channel, for tests that exercise C1's semantics without a Redis instance.
type InMemoryLimiter struct {
	cfg config.RateLimitConfig

	mu   sync.Mutex
	hits map[config.Channel][]time.Time
}

// NewInMemoryLimiter builds a limiter using cfg's window and per-channel
// limits.
func NewInMemoryLimiter(cfg config.RateLimitConfig) *InMemoryLimiter {
	return &InMemoryLimiter{cfg: cfg, hits: make(map[config.Channel][]time.Time)}
}

func (l *InMemoryLimiter) Acquire(ctx context.Context, channel config.Channel) (bool, error) {
	limit, err := l.cfg.LimitForChannel(channel)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-time.Duration(l.cfg.WindowSeconds) * time.Second)

	kept := l.hits[channel][:0]
	for _, t := range l.hits[channel] {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		l.hits[channel] = kept
		metrics.RateLimitDenied.WithLabelValues(string(channel)).Inc()
		return false, nil
	}
	l.hits[channel] = append(kept, now)
	return true, nil
}
