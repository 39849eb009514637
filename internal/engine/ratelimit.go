package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between outbound requests plus a small
// random jitter. One instance is shared by every fetch a pipeline makes, so
// search pagination, detail pages and PDF downloads all drain the same gate.
type Limiter struct {
	gate   *rate.Limiter
	jitter time.Duration
	sleep  func(ctx context.Context, d time.Duration)
}

// NewLimiter builds a Limiter. A non-positive minInterval disables the gate
// entirely; jitter adds up to that much extra delay per request.
func NewLimiter(minInterval, jitter time.Duration) *Limiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Limiter{
		gate:   rate.NewLimiter(limit, 1),
		jitter: jitter,
		sleep:  sleepContext,
	}
}

// Wait blocks until the next request is allowed, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.gate.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if j := randomJitter(l.jitter); j > 0 {
		l.sleep(ctx, j)
	}
	return nil
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
