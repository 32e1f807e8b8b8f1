package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/atlasintel/atlas-engine/internal/metrics"
)

// Limiter enforces a minimum gap between the dispatch times of consecutive
// operations against one upstream. Callers serialize strictly in arrival
// order; the limiter itself never fails, only the wrapped operation can.
type Limiter struct {
	name     string
	interval time.Duration
	clock    clock.Clock

	mu   sync.Mutex
	next time.Time
}

// New creates a limiter for the named upstream. A nil clk uses the wall clock.
func New(name string, interval time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{name: name, interval: interval, clock: clk}
}

// Wait reserves the next dispatch slot and suspends the caller until it
// arrives. Returns early only when the context is cancelled; the reserved
// slot stays consumed so later callers keep their ordering.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := l.clock.Now()
	start := l.next
	if start.Before(now) {
		start = now
	}
	l.next = start.Add(l.interval)
	l.mu.Unlock()

	wait := start.Sub(now)
	if wait <= 0 {
		return nil
	}
	metrics.ObserveLimiterWait(l.name, wait)

	timer := l.clock.Timer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do waits for a dispatch slot and then invokes fn. The operation's error
// propagates to the caller unchanged.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// Interval reports the configured minimum gap.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
