package graph

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// NodePolicy configures the execution behavior for a specific node.
// Zero fields fall back to the engine Options.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for one attempt.
	// If zero, Options.DefaultNodeTimeout is used.
	Timeout time.Duration

	// RetryPolicy specifies automatic retry behavior for transient failures.
	// If nil, no retries are attempted.
	RetryPolicy *RetryPolicy
}

// RetryPolicy defines automatic retry configuration for transient node failures.
//
// The delay before retry n (zero based) is min(BaseDelay * 2^n, MaxDelay)
// plus a random jitter in [0, BaseDelay).
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts, including the
	// first one. Must be >= 1.
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Retryable decides whether an error is worth another attempt.
	// If nil, timeouts are retried and everything else is not.
	Retryable func(error) bool
}

// Validate checks the policy constraints.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp *RetryPolicy) retryable(err error) bool {
	if rp.Retryable != nil {
		return rp.Retryable(err)
	}
	return HasCode(err, CodeNodeTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// computeBackoff calculates the delay before retry number attempt.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * (1 << attempt)
	if maxDelay > 0 && (delay > maxDelay || delay <= 0) {
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry jitter
	}
	return delay + jitter
}

// getNodeTimeout resolves the timeout for one attempt:
// NodePolicy.Timeout, then the engine default, then none.
func getNodeTimeout(policy NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy.Timeout > 0 {
		return policy.Timeout
	}
	return defaultTimeout
}
