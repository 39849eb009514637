package engine

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// defaultRetryDelays is the fixed escalating sequence applied between
// transient-failure retries. The values are deliberately coarse; the source
// throttles aggressively and short retries only dig the hole deeper.
var defaultRetryDelays = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// RetryPolicy retries transient fetch failures with a fixed escalating delay
// per attempt. Delay is a pure function of the attempt index; the sleep is
// injected so tests run without real waits.
type RetryPolicy struct {
	delays []time.Duration
	sleep  func(ctx context.Context, d time.Duration)
}

// NewRetryPolicy builds a policy over the default delay sequence.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		delays: defaultRetryDelays,
		sleep:  sleepContext,
	}
}

// NewRetryPolicyWithDelays builds a policy over a caller-supplied sequence.
func NewRetryPolicyWithDelays(delays []time.Duration) *RetryPolicy {
	if len(delays) == 0 {
		delays = defaultRetryDelays
	}
	return &RetryPolicy{
		delays: append([]time.Duration(nil), delays...),
		sleep:  sleepContext,
	}
}

// MaxAttempts is the total number of tries, including the first.
func (p *RetryPolicy) MaxAttempts() int {
	return len(p.delays) + 1
}

// Delay returns the wait before retrying after the given zero-based attempt.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(p.delays) {
		return p.delays[len(p.delays)-1]
	}
	return p.delays[attempt]
}

// Pause blocks for the attempt's delay, respecting the context.
func (p *RetryPolicy) Pause(ctx context.Context, attempt int) {
	p.sleep(ctx, p.Delay(attempt))
}

// ShouldRetry reports whether the failure is worth another attempt.
// Throttling (429) and server errors are transient; context cancellation and
// client errors are not.
func (p *RetryPolicy) ShouldRetry(statusCode int, err error, attempt int) bool {
	if attempt >= p.MaxAttempts()-1 {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return true
	}
	if statusCode >= 400 {
		return false
	}
	return err != nil
}
