// Package retry runs operations with exponential backoff.
// It is a thin policy layer over github.com/cenkalti/backoff/v5 used for
// store connects at startup and for per-student lock acquisition.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	// Zero means unlimited (bounded by MaxElapsed and the context).
	MaxAttempts uint

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps a single delay.
	MaxDelay time.Duration

	// MaxElapsed caps the total time spent retrying. Zero means no cap.
	MaxElapsed time.Duration

	// Multiplier is the growth factor between delays.
	Multiplier float64

	// JitterFactor randomizes delays (0.0 = none).
	JitterFactor float64

	// OnRetry is called before each retry.
	OnRetry func(err error, delay time.Duration)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ConnectConfig is used for store and cache connections at startup.
func ConnectConfig() Config {
	return Config{
		MaxAttempts:  6,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		MaxElapsed:   30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// LockConfig is used while waiting for a contended per-student lock.
// The wait is bounded by the caller's context and maxWait.
func LockConfig(maxWait time.Duration) Config {
	return Config{
		InitialDelay: 15 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		MaxElapsed:   maxWait,
		Multiplier:   1.6,
		JitterFactor: 0.3,
	}
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

func (c Config) options() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if c.InitialDelay > 0 {
		b.InitialInterval = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		b.MaxInterval = c.MaxDelay
	}
	if c.Multiplier > 0 {
		b.Multiplier = c.Multiplier
	}
	b.RandomizationFactor = c.JitterFactor

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if c.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(c.MaxAttempts))
	}
	if c.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.MaxElapsed))
	}
	if c.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(c.OnRetry))
	}
	return opts
}

// Do executes fn until it succeeds, returns a permanent error,
// the attempts are exhausted, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoWithData(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		return fn(ctx)
	}, cfg.options()...)
}
