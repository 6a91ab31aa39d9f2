// Package retry implements exponential-backoff-with-jitter retry, adapted
// from the resilience patterns the teacher service uses for LLM/HTTP/DB
// calls. pkg/fetchctl and pkg/syncqueue both use it: the former for fetch
// retries, the latter for the inter-drain backoff applied to errored changes.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// Recorder is an optional sink for retry telemetry. internal/telemetry
// implements it against Prometheus; nil is a valid Recorder (no-op).
type Recorder interface {
	RecordAttempt(operation, outcome string, duration time.Duration)
	RecordBackoff(operation string, delay time.Duration)
}

// Checker decides whether an error should trigger another attempt. A nil
// Checker treats every non-nil error as retryable.
type Checker interface {
	IsRetryable(err error) bool
}

// Policy configures exponential backoff with optional jitter.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool

	Checker       Checker
	Logger        *slog.Logger
	Recorder      Recorder
	OperationName string
}

// DefaultPolicy returns 3 retries, 100ms base delay, 2x backoff, 5s cap,
// 10% jitter — the teacher's resilience.DefaultRetryPolicy numbers.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do runs operation, retrying on failure per policy. Context cancellation
// during a backoff wait returns ctx.Err() immediately without consuming a
// retry attempt's logging as a normal failure.
func Do[T any](ctx context.Context, policy *Policy, operation func() (T, error)) (T, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	logger := policy.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opName := policy.OperationName
	if opName == "" {
		opName = "unknown"
	}

	var lastResult T
	var lastErr error
	delay := policy.BaseDelay

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		start := time.Now()
		result, err := operation()
		if policy.Recorder != nil {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			policy.Recorder.RecordAttempt(opName, outcome, time.Since(start))
		}

		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry", "operation", opName, "attempt", attempt+1)
			}
			return result, nil
		}

		lastResult, lastErr = result, err

		if !shouldRetry(err, policy.Checker) {
			logger.Debug("error is non-retryable, stopping", "operation", opName, "error", err)
			return lastResult, lastErr
		}

		if attempt >= policy.MaxRetries {
			logger.Warn("operation failed after all retries", "operation", opName, "attempts", attempt+1, "error", err)
			break
		}

		logger.Debug("operation failed, retrying", "operation", opName, "attempt", attempt+1, "delay", delay, "error", err)
		if policy.Recorder != nil {
			policy.Recorder.RecordBackoff(opName, delay)
		}

		if !waitWithContext(ctx, delay) {
			var zero T
			return zero, ctx.Err()
		}
		delay = nextDelay(delay, policy)
	}

	return lastResult, lastErr
}

func shouldRetry(err error, checker Checker) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if checker != nil {
		return checker.IsRetryable(err)
	}
	return true
}

func waitWithContext(ctx context.Context, delay time.Duration) bool {
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func nextDelay(current time.Duration, policy *Policy) time.Duration {
	next := time.Duration(float64(current) * policy.Multiplier)
	if next > policy.MaxDelay {
		next = policy.MaxDelay
	}
	if policy.Jitter {
		next += time.Duration(float64(next) * 0.1 * rand.Float64())
	}
	return next
}
