// Package resilience provides transient-failure classification and a small
// bounded retry helper. The identification pipeline permits exactly one
// retry, at Tier-1 only, and only for transient faults; structural failures
// (unparseable input) are never retried.
package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first try.
	// A value of 1 means no retries. Default: 2.
	MaxAttempts int

	// Backoff is the delay before a retry, jittered ±25%. Default: 500ms.
	Backoff time.Duration

	// ShouldRetry overrides the default IsTransient check when non-nil.
	ShouldRetry func(err error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	return c
}

// DoVal runs fn, retrying transient failures up to the configured attempt
// budget. Context cancellation stops retries immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt >= cfg.MaxAttempts-1 {
			return zero, lastErr
		}

		zap.L().Warn("retrying operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		// ±25% jitter.
		delay := time.Duration(float64(cfg.Backoff) * (0.75 + rand.Float64()*0.5))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// TransientError marks an error as safe to retry (429, 5xx, timeouts).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err (or anything in its chain) is a
// TransientError or matches common network-level transient patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
