// Package providers holds the text-generation client. The engine treats
// generation as opaque: prompt text plus context in, reply text out.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Request carries everything the generator needs for one reply.
type Request struct {
	Prompt  string // user text, or a mediation instruction payload
	Speaker string // display name of the human speaker; empty for mediation
	History string // formatted recent-history block, may be empty
}

// Generator produces a reply for a request. Implementations must respect the
// context deadline.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Sentinel errors for non-transient generation outcomes. Neither is retried;
// the dispatcher maps each to a fixed user-visible fallback.
var (
	ErrSafetyBlocked = errors.New("generation blocked by provider safety filter")
	ErrEmptyResponse = errors.New("generation returned no text")
)

// RetryConfig bounds the retry loop for transient transport failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the original client: 3 attempts, exponential
// backoff between 2s and 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks an error as retryable (connection/timeout class).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is retryable: explicitly marked, or a
// network timeout/connection failure.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// RetryDo runs fn with bounded exponential backoff, retrying only transient
// errors. Context cancellation aborts the wait immediately.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == cfg.MaxAttempts {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, cfg.MaxDelay)
	}

	return zero, fmt.Errorf("retries exhausted: %w", lastErr)
}
