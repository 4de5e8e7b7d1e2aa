// Package retry defines retry policies, backoff strategies and the
// permanent-error marker that short-circuits them.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy defines a retry strategy. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialDelay    time.Duration `json:"initial_delay"`
	MaxDelay        time.Duration `json:"max_delay,omitempty"` // 0 disables the cap
	BackoffStrategy BackoffType   `json:"backoff_strategy"`
	JitterFactor    float64       `json:"jitter_factor,omitempty"` // 0.0-1.0
}

// BackoffType identifies the backoff strategy.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"       // Same delay each time
	BackoffLinear      BackoffType = "linear"      // Delay increases linearly
	BackoffExponential BackoffType = "exponential" // Delay doubles each time
)

// IsValid reports whether the backoff type is known.
func (b BackoffType) IsValid() bool {
	switch b {
	case BackoffFixed, BackoffLinear, BackoffExponential:
		return true
	}
	return false
}

// DefaultPolicy is the job policy: 3 attempts, exponential from 5s, no jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialDelay:    5 * time.Second,
		BackoffStrategy: BackoffExponential,
	}
}

// ConnectPolicy is used for dependencies that may still be starting, such as the database.
func ConnectPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialDelay:    time.Second,
		MaxDelay:        10 * time.Second,
		BackoffStrategy: BackoffExponential,
		JitterFactor:    0.2,
	}
}

// NoRetryPolicy returns a policy that never retries.
func NoRetryPolicy() Policy {
	return Policy{MaxAttempts: 1}
}

// CalculateDelay returns the wait before the retry that follows the given attempt.
// Attempt numbers start at 1, so exponential backoff yields base, 2*base, 4*base...
func (p Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	var delay time.Duration

	switch p.BackoffStrategy {
	case BackoffFixed:
		delay = p.InitialDelay
	case BackoffLinear:
		delay = p.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		delay = p.InitialDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	default:
		delay = p.InitialDelay
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterFactor > 0 {
		jitter := float64(delay) * p.JitterFactor * (rand.Float64()*2 - 1) // -jitter to +jitter
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// ShouldRetry reports whether another attempt may follow attemptsMade failed ones.
func (p Policy) ShouldRetry(attemptsMade int, err error) bool {
	if IsPermanent(err) {
		return false
	}
	return attemptsMade < p.MaxAttempts
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job it fails goes straight to failed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent anywhere in its chain.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Executor provides in-process retry execution.
type Executor struct {
	policy Policy
}

// NewExecutor creates a new retry executor with the given policy.
func NewExecutor(policy Policy) *Executor {
	return &Executor{policy: policy}
}

// RetryableFunc is a function that can be retried. Attempt starts at 1.
type RetryableFunc func(ctx context.Context, attempt int) error

// Execute runs fn until it succeeds, returns a permanent error, or the policy is exhausted.
func (e *Executor) Execute(ctx context.Context, fn RetryableFunc) error {
	var lastErr error

	for attempt := 1; attempt <= max(e.policy.MaxAttempts, 1); attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !e.policy.ShouldRetry(attempt, err) {
			break
		}

		if delay := e.policy.CalculateDelay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}
