// Package retrypolicy runs remote calls under a bounded exponential backoff.
package retrypolicy

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kazu-apps/carenote-sync/internal/errs"
)

// Policy describes how a failed call is retried.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // first backoff delay
	MaxDelay    time.Duration // cap on a single delay
	CallTimeout time.Duration // deadline applied to each attempt, 0 disables it
}

// Default returns the policy used when none is configured.
func Default() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, CallTimeout: 15 * time.Second}
}

// Backoff builds a fresh backoff sequence; go-retry backoffs are stateful.
func (p Policy) Backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	b = retry.WithJitterPercent(10, b)
	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), b)
}

// Budget bounds the wall time of one Do call: every attempt at its
// CallTimeout plus the capped delay between attempts. It is 0 when
// CallTimeout is unset and the calls are unbounded.
func (p Policy) Budget() time.Duration {
	if p.CallTimeout <= 0 {
		return 0
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.MaxDelay
	if delay <= 0 {
		delay = p.BaseDelay << (attempts - 1)
	}
	// Jitter adds up to 10% to each delay.
	delay += delay / 10
	return time.Duration(attempts)*p.CallTimeout + time.Duration(attempts-1)*delay
}

// Do calls fn until it succeeds, fails with a non-transient error, the
// attempts are exhausted or ctx is done. Each attempt gets its own timeout.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls returning a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.DoValue(ctx, p.Backoff(), func(ctx context.Context) (T, error) {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		}
		defer cancel()

		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() == nil && errs.KindOf(err).Retryable() {
			return v, retry.RetryableError(err)
		}
		return v, err
	})
}
