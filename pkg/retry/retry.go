// Package retry retries failing calls with exponential backoff, and times them.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config configures retry behaviour.
type Config struct {
	// MaxAttempts is the maximum number of attempts, the first one included.
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=0"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// BackoffFactor multiplies the delay after every retry.
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	// Jitter adds randomness to the delay, from 0.0 to 1.0.
	Jitter float64 `mapstructure:"jitter" validate:"gte=0,lte=1"`
	// RetryIf decides if an error is worth another attempt.
	RetryIf func(error) bool `mapstructure:"-"`
	// OnRetry is called before every retry.
	OnRetry func(attempt int, err error, backoff time.Duration) `mapstructure:"-"`
}

// DefaultConfig retries 3 times, starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        DefaultRetryIf,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// DefaultRetryIf retries all errors except cancellation and permanent errors.
func DefaultRetryIf(err error) bool {
	var perm *permanentError

	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.As(err, &perm)
}

// Do calls fn until it succeeds, the error is not retryable, the attempts are exhausted
// or ctx is done.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	cfg.applyDefaults()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			return zero, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()

			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, errors.Wrapf(lastErr, "giving up after %d attempts", cfg.MaxAttempts)
}

func calculateBackoff(attempt int, cfg Config) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))

	if cfg.Jitter > 0 {
		jitterRange := backoff * cfg.Jitter
		backoff += (rand.Float64()*2 - 1) * jitterRange //nolint:gosec // jitter does not need a secure source
	}

	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	if backoff < 0 {
		backoff = float64(cfg.InitialBackoff)
	}

	return time.Duration(backoff)
}

// Timed calls fn and logs how long it took under name.
func Timed[T any](ctx context.Context, log zerolog.Logger, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	res, err := fn(ctx)

	event := log.Debug()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.Str("call", name).Dur("duration", time.Since(start)).Msg("call finished")

	return res, err
}
