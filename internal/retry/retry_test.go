package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corvid-labs/weathervane/internal/fault"
)

func serverFault() error {
	return &fault.Error{Kind: fault.KindServerFault, Retryable: true, Message: "upstream server fault"}
}

func notFound() error {
	return &fault.Error{Kind: fault.KindNotFound, Message: "upstream resource not found"}
}

// fastPolicy keeps test runs quick while still exercising the backoff path.
func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
}

func TestExecuteSuccessFirstTry(t *testing.T) {
	calls := 0
	got, err := Execute(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want %q after 1", got, calls, "ok")
	}
}

func TestExecuteExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), fastPolicy(4), func(ctx context.Context) (int, error) {
		calls++
		return 0, serverFault()
	})
	if calls != 4 {
		t.Errorf("operation invoked %d times, want exactly 4", calls)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.KindServerFault {
		t.Errorf("terminal error = %v, want classified server fault", err)
	}
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, notFound()
	})
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.KindNotFound {
		t.Errorf("terminal error = %v, want not_found", err)
	}
}

func TestExecuteZeroBudgetNeverInvokes(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), Policy{}, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if calls != 0 {
		t.Errorf("operation invoked %d times under zero budget, want 0", calls)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.KindConnection || fe.Retryable {
		t.Errorf("terminal error = %v, want the offline connection error", err)
	}
}

func TestExecuteSurfacesRateLimitWithRetryAfter(t *testing.T) {
	calls := 0
	limited := &fault.Error{
		Kind:       fault.KindRateLimited,
		Retryable:  true,
		RetryAfter: 30 * time.Second,
		Message:    "rate limited by upstream",
	}
	start := time.Now()
	_, err := Execute(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, limited
	})
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1 (no automatic retry)", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("execute slept %v on a caller-directed wait", elapsed)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.RetryAfter != 30*time.Second {
		t.Errorf("terminal error = %v, want the rate-limit signal intact", err)
	}
}

func TestExecuteRetriesRateLimitWithoutRetryAfter(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		return 0, &fault.Error{Kind: fault.KindRateLimited, Retryable: true, Message: "rate limited by upstream"}
	})
	if calls != 2 {
		t.Errorf("operation invoked %d times, want 2 (normal backoff without a wait hint)", calls)
	}
	if err == nil {
		t.Fatal("expected terminal error")
	}
}

// TestExecuteBackoffScenario pins the delay schedule: base 500ms with 1.5x
// growth puts the waits before attempts two and three at roughly 500ms and
// 750ms, each stretched by at most 10% jitter.
func TestExecuteBackoffScenario(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 15 * time.Second, Multiplier: 1.5}

	var stamps []time.Time
	got, err := Execute(context.Background(), policy, func(ctx context.Context) (string, error) {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return "", serverFault()
		}
		return "third time lucky", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "third time lucky" {
		t.Errorf("got %q", got)
	}
	if len(stamps) != 3 {
		t.Fatalf("operation invoked %d times, want 3", len(stamps))
	}

	gap1 := stamps[1].Sub(stamps[0])
	gap2 := stamps[2].Sub(stamps[1])
	if gap1 < 500*time.Millisecond || gap1 > 700*time.Millisecond {
		t.Errorf("delay before attempt 2 = %v, want 500ms +10%% jitter", gap1)
	}
	if gap2 < 750*time.Millisecond || gap2 > 1000*time.Millisecond {
		t.Errorf("delay before attempt 3 = %v, want 750ms +10%% jitter", gap2)
	}
}

func TestBackoffMonotoneAndBounded(t *testing.T) {
	policy := Policy{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond, Multiplier: 2}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := policy.backoff(attempt)
		if d < prev {
			t.Errorf("backoff(%d) = %v < backoff(%d) = %v; delays must not shrink", attempt, d, attempt-1, prev)
		}
		if d > policy.MaxDelay {
			t.Errorf("backoff(%d) = %v exceeds cap %v", attempt, d, policy.MaxDelay)
		}
		prev = d
	}

	if d := policy.backoff(1); d != 100*time.Millisecond {
		t.Errorf("backoff(1) = %v, want base delay", d)
	}
	if d := policy.backoff(3); d != 400*time.Millisecond {
		t.Errorf("backoff(3) = %v, want capped 400ms", d)
	}
}

func TestWithJitterBounds(t *testing.T) {
	base := time.Second
	for i := 0; i < 200; i++ {
		d := withJitter(base)
		if d < base || d > base+base/10 {
			t.Fatalf("withJitter(%v) = %v, want within [%v, %v]", base, d, base, base+base/10)
		}
	}
}

func TestExecuteCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}

	calls := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Execute(ctx, policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, serverFault()
	})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled execute took %v, want prompt return from backoff sleep", elapsed)
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times after cancellation, want 1", calls)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.KindCancelled {
		t.Errorf("terminal error = %v, want cancelled", err)
	}
}

func TestExecuteWithFallback(t *testing.T) {
	t.Run("fallback value after exhaustion", func(t *testing.T) {
		fallbackCalls := 0
		got, err := ExecuteWithFallback(context.Background(), fastPolicy(2),
			func(ctx context.Context) (string, error) { return "", serverFault() },
			func(ctx context.Context) (string, error) {
				fallbackCalls++
				return "from fallback", nil
			})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "from fallback" || fallbackCalls != 1 {
			t.Errorf("got %q with %d fallback calls, want fallback value once", got, fallbackCalls)
		}
	})

	t.Run("fallback runs after non-retryable primary", func(t *testing.T) {
		got, err := ExecuteWithFallback(context.Background(), fastPolicy(3),
			func(ctx context.Context) (string, error) { return "", notFound() },
			func(ctx context.Context) (string, error) { return "rescued", nil })
		if err != nil || got != "rescued" {
			t.Errorf("got (%q, %v), want fallback rescue", got, err)
		}
	})

	t.Run("fallback error propagates classified", func(t *testing.T) {
		_, err := ExecuteWithFallback(context.Background(), fastPolicy(1),
			func(ctx context.Context) (string, error) { return "", serverFault() },
			func(ctx context.Context) (string, error) { return "", errors.New("fallback exploded") })
		var fe *fault.Error
		if !errors.As(err, &fe) || fe.Kind != fault.KindUnknown {
			t.Errorf("fallback failure = %v, want classified unknown", err)
		}
	})

	t.Run("primary success skips fallback", func(t *testing.T) {
		fallbackCalls := 0
		got, err := ExecuteWithFallback(context.Background(), fastPolicy(1),
			func(ctx context.Context) (string, error) { return "primary", nil },
			func(ctx context.Context) (string, error) {
				fallbackCalls++
				return "fallback", nil
			})
		if err != nil || got != "primary" || fallbackCalls != 0 {
			t.Errorf("got (%q, %v) with %d fallback calls", got, err, fallbackCalls)
		}
	})

	t.Run("cancellation skips fallback", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		fallbackCalls := 0
		_, err := ExecuteWithFallback(ctx, fastPolicy(2),
			func(ctx context.Context) (string, error) {
				cancel()
				return "", ctx.Err()
			},
			func(ctx context.Context) (string, error) {
				fallbackCalls++
				return "fallback", nil
			})
		var fe *fault.Error
		if !errors.As(err, &fe) || fe.Kind != fault.KindCancelled {
			t.Errorf("error = %v, want cancelled", err)
		}
		if fallbackCalls != 0 {
			t.Errorf("fallback invoked %d times after cancellation, want 0", fallbackCalls)
		}
	})
}

func TestExecuteWithTimeout(t *testing.T) {
	t.Run("slow attempts time out and consume budget", func(t *testing.T) {
		calls := 0
		_, err := ExecuteWithTimeout(context.Background(), fastPolicy(2), 20*time.Millisecond,
			func(ctx context.Context) (int, error) {
				calls++
				select {
				case <-time.After(500 * time.Millisecond):
					return 1, nil
				case <-ctx.Done():
					return 0, ctx.Err()
				}
			})
		if calls != 2 {
			t.Errorf("operation invoked %d times, want 2", calls)
		}
		var fe *fault.Error
		if !errors.As(err, &fe) || fe.Kind != fault.KindTimeout {
			t.Errorf("terminal error = %v, want timeout", err)
		}
	})

	t.Run("fast attempt returns its value", func(t *testing.T) {
		got, err := ExecuteWithTimeout(context.Background(), fastPolicy(2), time.Second,
			func(ctx context.Context) (int, error) { return 42, nil })
		if err != nil || got != 42 {
			t.Errorf("got (%d, %v), want (42, nil)", got, err)
		}
	})

	t.Run("caller cancellation wins over the attempt deadline", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ExecuteWithTimeout(ctx, fastPolicy(3), time.Second,
			func(ctx context.Context) (int, error) {
				<-ctx.Done()
				return 0, ctx.Err()
			})
		var fe *fault.Error
		if !errors.As(err, &fe) || fe.Kind != fault.KindCancelled {
			t.Errorf("terminal error = %v, want cancelled", err)
		}
	})
}
