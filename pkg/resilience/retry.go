package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig controls backoff. Zero fields take defaults. Retryable, when
// set, ends the loop early on errors it rejects.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Retryable      func(error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 || c.JitterFraction > 1 {
		c.JitterFraction = 0.1
	}
	return c
}

// delay is the pause after the given failed attempt, counting from 1.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < attempt && d < float64(c.MaxDelay); i++ {
		d *= c.Multiplier
	}
	d += d * c.JitterFraction * (2*rand.Float64() - 1)
	return time.Duration(min(d, float64(c.MaxDelay)))
}

// Retry calls fn until it succeeds, the attempts run out, the error is not
// retryable or ctx is done.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		err := fn()
		switch {
		case err == nil:
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		case attempt == cfg.MaxAttempts:
			return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempt, err)
		case cfg.Retryable != nil && !cfg.Retryable(err):
			return fmt.Errorf("%s: %w", name, err)
		case ctx.Err() != nil:
			return fmt.Errorf("%s: retry aborted: %w", name, ctx.Err())
		}

		wait := cfg.delay(attempt)
		logger.Warn("attempt failed, backing off", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "delay", wait, "error", err)
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("%s: retry aborted during backoff: %w", name, ctx.Err())
		}
	}
}
