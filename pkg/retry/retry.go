// Package retry runs operations against external systems with exponential
// backoff until they succeed, the context ends or the attempts run out.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/c360/stormbridge/errors"
)

// NonRetryableError marks an error that ends the retry loop at once.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err so Do returns it without further attempts.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or an error it wraps, is non-retryable.
// Errors classified invalid or fatal count as non-retryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	if errors.As(err, &nre) {
		return true
	}
	var ce *errors.ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class != errors.ErrorTransient
	}
	return false
}

// Config is a backoff policy.
type Config struct {
	MaxAttempts  int           // total attempts; values below 1 mean one attempt
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // delay cap
	Multiplier   float64       // growth per attempt
	AddJitter    bool          // add up to 25% random delay

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig is for ordinary client calls: 3 attempts, 100ms to 5s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Persistent is for resources the process cannot run without, such as the
// NATS connection at startup: 30 attempts, 200ms to 10s.
func Persistent() Config {
	return Config{
		MaxAttempts:  30,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Reconnect is for clients re-dialing a lost connection.
func Reconnect(initial time.Duration, attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: initial,
		MaxDelay:     max(initial, 30*time.Second),
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Validate rejects negative durations and multipliers.
func (c Config) Validate() error {
	switch {
	case c.InitialDelay < 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "initial delay cannot be negative")
	case c.MaxDelay < 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "max delay cannot be negative")
	case c.Multiplier < 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "multiplier cannot be negative")
	case c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "max delay must be >= initial delay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = max(5*time.Second, c.InitialDelay)
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	c.Multiplier = min(c.Multiplier, 1000)
	return c
}

// next returns the delay that follows d.
func (c Config) next(d time.Duration) time.Duration {
	n := float64(d) * c.Multiplier
	if n > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(n)
}

func (c Config) jittered(d time.Duration) time.Duration {
	if !c.AddJitter || d < 4 {
		return d
	}
	return d + rand.N(d/4)
}

// Do calls fn until it returns nil, a non-retryable error, or the attempts
// are used up. It returns early when ctx ends.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsNonRetryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := cfg.jittered(delay)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, sleep)
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
		delay = cfg.next(delay)
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
