// Package retry executes operations under bounded exponential backoff with
// jitter, consulting the fault classifier on every failure. Policies are
// immutable values; attempt state is local to each call, so concurrent
// executions share nothing.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/corvid-labs/weathervane/internal/fault"
)

// jitterFraction bounds the uniform random slice added to each backoff delay
// so concurrent callers do not retry in lockstep.
const jitterFraction = 0.10

// Operation is one unit of remote work. Implementations must honor ctx.
type Operation[T any] func(ctx context.Context) (T, error)

// Policy bounds a single execution. A fresh value is derived per call by the
// adaptive tuner; callers never share a mutable policy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// backoff returns the pre-jitter delay after the given 1-based failed
// attempt: min(BaseDelay × Multiplier^(attempt−1), MaxDelay).
func (p Policy) backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if limit := float64(p.MaxDelay); p.MaxDelay > 0 && d > limit {
		d = limit
	}
	return time.Duration(d)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Float64()*jitterFraction*float64(d))
}

// Execute runs op until it succeeds, its failure classifies as non-retryable,
// or the attempt budget is spent. The terminal error is always a classified
// *fault.Error. A rate-limited failure carrying an upstream Retry-After is
// surfaced immediately rather than slept on: that signal belongs to the
// caller, and absorbing it here would hide it. A zero attempt budget (the
// offline policy) fails without invoking op at all.
func Execute[T any](ctx context.Context, policy Policy, op Operation[T]) (T, error) {
	var zero T

	if policy.MaxAttempts <= 0 {
		return zero, fault.Offline()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fault.Classify(err)
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}

		failure := fault.Classify(err)
		if !failure.Retryable || attempt >= policy.MaxAttempts {
			return zero, failure
		}
		if failure.Kind == fault.KindRateLimited && failure.RetryAfter > 0 {
			return zero, failure
		}

		timer := time.NewTimer(withJitter(policy.backoff(attempt)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fault.Classify(ctx.Err())
		case <-timer.C:
		}
	}
}

// ExecuteWithFallback runs op under the policy and, if it terminally fails,
// runs fallback exactly once, returning the fallback's own classified error
// if that fails too. The fallback is skipped when the caller has already
// cancelled: no new work may start after cancellation.
func ExecuteWithFallback[T any](ctx context.Context, policy Policy, op, fallback Operation[T]) (T, error) {
	value, err := Execute(ctx, policy, op)
	if err == nil || fallback == nil {
		return value, err
	}

	var zero T
	primary := fault.Classify(err)
	if primary.Kind == fault.KindCancelled || ctx.Err() != nil {
		return zero, primary
	}

	value, err = fallback(ctx)
	if err != nil {
		return zero, fault.Classify(err)
	}
	return value, nil
}

// ExecuteWithTimeout is Execute with every attempt raced against its own
// deadline; an attempt that overruns manufactures a retryable timeout
// failure and consumes budget like any other attempt.
func ExecuteWithTimeout[T any](ctx context.Context, policy Policy, timeout time.Duration, op Operation[T]) (T, error) {
	return Execute(ctx, policy, WithTimeout(timeout, op))
}

// WithTimeout wraps op so each invocation races a deadline. The race is
// cooperative: the wrapped operation receives a context that expires at the
// deadline, and a straggler's eventual result is discarded rather than
// interrupted.
func WithTimeout[T any](timeout time.Duration, op Operation[T]) Operation[T] {
	if timeout <= 0 {
		return op
	}

	return func(ctx context.Context) (T, error) {
		var zero T

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type outcome struct {
			value T
			err   error
		}
		done := make(chan outcome, 1)
		go func() {
			value, err := op(attemptCtx)
			done <- outcome{value, err}
		}()

		select {
		case out := <-done:
			return out.value, out.err
		case <-attemptCtx.Done():
			if ctx.Err() != nil {
				return zero, fault.Classify(ctx.Err())
			}
			return zero, &fault.Error{
				Kind:      fault.KindTimeout,
				Retryable: true,
				Message:   fmt.Sprintf("no response within %s", timeout),
			}
		}
	}
}
