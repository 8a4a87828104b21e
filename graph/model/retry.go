package model

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy configures retries of transient provider failures.
type RetryPolicy struct {
	// MaxAttempts counts the initial call. 1 means no retries.
	MaxAttempts int

	// BaseDelay is doubled on each retry, up to MaxDelay, plus up to
	// BaseDelay of jitter.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Retryable reports whether err is worth another attempt. Nil retries
	// everything except context cancellation.
	Retryable func(error) bool
}

// Validate checks the policy's bounds. MaxDelay zero means uncapped.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.BaseDelay < 0 || (rp.MaxDelay > 0 && rp.MaxDelay < rp.BaseDelay) {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if rp.Retryable == nil {
		return true
	}
	return rp.Retryable(err)
}

// computeBackoff returns min(base*2^attempt, maxDelay) plus jitter in
// [0, base). attempt is zero-based.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base << attempt
	if delay <= 0 || (maxDelay > 0 && delay > maxDelay) {
		delay = maxDelay
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return delay + jitter
}

type retrying struct {
	next   ChatModel
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps m so transient failures are retried under policy.
func WithRetry(m ChatModel, policy RetryPolicy) (ChatModel, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &retrying{next: m, policy: policy, sleep: sleepContext}, nil
}

func (r *retrying) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, computeBackoff(attempt-1, r.policy.BaseDelay, r.policy.MaxDelay, nil)); err != nil {
				return ChatOut{}, err
			}
		}
		out, err := r.next.Chat(ctx, messages)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !r.policy.retryable(err) {
			break
		}
	}
	return ChatOut{}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
