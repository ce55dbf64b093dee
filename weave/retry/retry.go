/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry retries trace server writes with exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config configures retry behavior for trace server writes.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (default: 3).
	// 0 means do not retry at all.
	MaxRetries int `env:"MAX_RETRIES, default=3"`
	// BaseBackoff is the initial backoff duration (default: 200ms).
	BaseBackoff time.Duration `env:"BASE_BACKOFF, default=200ms"`
	// MaxBackoff is the maximum backoff duration (default: 5s).
	MaxBackoff time.Duration `env:"MAX_BACKOFF, default=5s"`
	// MaxJitter is the maximum random jitter added to backoff (default: 100ms).
	MaxJitter time.Duration `env:"MAX_JITTER, default=100ms"`
}

// Validate checks that the retry configuration has valid values.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	if c.MaxBackoff < 0 {
		return errors.New("max backoff cannot be negative")
	}
	if c.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultConfig returns a configuration suited to short-lived trace writes.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		MaxJitter:   100 * time.Millisecond,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that IsRetryable rejects it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable retries everything except permanent errors and context
// cancellation.
func IsRetryable(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Delay is the wait before retry number attempt (counting from zero):
// BaseBackoff doubled per attempt, capped at MaxBackoff, plus up to
// MaxJitter of random jitter.
func (c Config) Delay(attempt int) time.Duration {
	d := min(c.BaseBackoff<<attempt, c.MaxBackoff)
	if c.MaxJitter > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(c.MaxJitter))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	return d
}

// Do calls fn until it succeeds, fails with an error isRetryable rejects,
// or MaxRetries retries have been spent. Waiting between attempts stops
// early when ctx is done.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	result, err := fn()
	for attempt := 0; err != nil && isRetryable(err); attempt++ {
		if attempt >= cfg.MaxRetries {
			return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, err)
		}

		delay := cfg.Delay(attempt)
		clog.FromContext(ctx).With("operation", operation, "attempt", attempt+1, "max_retries", cfg.MaxRetries, "backoff", delay, "error", err.Error()).
			Warn("Trace write failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
		result, err = fn()
	}
	return result, err
}
