package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Executor runs a function until it succeeds or the policy gives up
type Executor struct {
	policy Policy
	clock  quartz.Clock
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats contains retry statistics
type Stats struct {
	TotalAttempts   int64         // total attempt count
	TotalRetries    int64         // total retry count
	TotalSuccesses  int64         // total success count
	TotalFailures   int64         // total failure count
	TotalRetryDelay time.Duration // total time spent waiting between attempts
}

// ExecutorOption is a configuration option for Executor
type ExecutorOption func(*Executor)

// WithClock sets the clock used for retry delays
func WithClock(clock quartz.Clock) ExecutorOption {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the logger for retry events
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates a retry executor
func NewExecutor(policy Policy, opts ...ExecutorOption) *Executor {
	e := &Executor{
		policy: policy,
		clock:  quartz.NewReal(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs fn with retry logic. name labels log records and the final error.
func Do[T any](ctx context.Context, e *Executor, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		e.update(func(s *Stats) { s.TotalAttempts++ })
		result, err := fn(ctx)
		if err == nil {
			e.update(func(s *Stats) { s.TotalSuccesses++ })
			if attempt > 1 {
				e.logger.Info("retry succeeded", slog.String("operation", name), slog.Int("attempt", attempt))
			}
			return result, nil
		}

		if !e.policy.ShouldRetry(err, attempt) {
			e.update(func(s *Stats) { s.TotalFailures++ })
			e.logger.Error("giving up",
				slog.String("operation", name),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return zero, fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
		}

		delay := e.policy.NextDelay(attempt)
		e.update(func(s *Stats) {
			s.TotalRetries++
			s.TotalRetryDelay += delay
		})
		e.logger.Warn("attempt failed, retrying",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		if delay > 0 {
			timer := e.clock.NewTimer(delay, "retry", name)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Stats returns retry statistics
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Executor) update(fn func(*Stats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.stats)
}
