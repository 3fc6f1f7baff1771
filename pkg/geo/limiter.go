package geo

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between calls to one provider. It is
// shared across all goroutines hitting that provider, so parallel scope units
// cannot exceed the provider's published rate limit in aggregate.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewLimiter creates a limiter with the given minimum interval between calls.
// A zero or negative interval disables limiting.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Wait blocks until the caller may proceed, or returns the context's error if
// it is cancelled first. Callers are granted slots in arrival order under the
// internal lock.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	wait := l.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	l.next = now.Add(wait + l.interval)
	l.mu.Unlock()

	if wait == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
