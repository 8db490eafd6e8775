// Package retry retries connection setup for work providers
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Policy defines the retry strategy interface
type Policy interface {
	// ShouldRetry determines whether to retry after attempt failed with err
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the delay before the attempt following attempt
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of attempts
	MaxAttempts() int
}

// Condition is a function that determines retry conditions
type Condition func(error) bool

// DefaultCondition retries everything except context cancellation
func DefaultCondition(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Backoff computes delays as initial * multiplier^(attempt-1), capped at
// maxDelay. A multiplier of 1 gives a fixed delay.
type Backoff struct {
	maxAttempts  int
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	condition    Condition
}

// Option is a configuration option for Backoff
type Option func(*Backoff)

// WithMultiplier sets the multiplier for exponential backoff
func WithMultiplier(multiplier float64) Option {
	return func(b *Backoff) {
		if multiplier >= 1 {
			b.multiplier = multiplier
		}
	}
}

// WithMaxDelay sets the maximum delay time
func WithMaxDelay(maxDelay time.Duration) Option {
	return func(b *Backoff) {
		if maxDelay > 0 {
			b.maxDelay = maxDelay
		}
	}
}

// WithCondition sets the retry condition
func WithCondition(condition Condition) Option {
	return func(b *Backoff) {
		if condition != nil {
			b.condition = condition
		}
	}
}

// NewFixedDelay creates a policy that waits delay between attempts
func NewFixedDelay(maxAttempts int, delay time.Duration, opts ...Option) *Backoff {
	return NewBackoff(maxAttempts, delay, append([]Option{WithMultiplier(1)}, opts...)...)
}

// NewBackoff creates an exponential backoff policy. maxAttempts below one
// is treated as one.
func NewBackoff(maxAttempts int, initialDelay time.Duration, opts ...Option) *Backoff {
	b := &Backoff{
		maxAttempts:  max(maxAttempts, 1),
		initialDelay: initialDelay,
		multiplier:   2.0,
		maxDelay:     30 * time.Second,
		condition:    DefaultCondition,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ShouldRetry determines whether to retry
func (b *Backoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= b.maxAttempts {
		return false
	}
	return b.condition(err)
}

// NextDelay returns the delay for the next retry
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := time.Duration(float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1)))
	if delay > b.maxDelay || delay < 0 {
		delay = b.maxDelay
	}
	return delay
}

// MaxAttempts returns the maximum attempts
func (b *Backoff) MaxAttempts() int {
	return b.maxAttempts
}
