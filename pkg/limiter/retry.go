package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/adaptmgr/core"
)

// RetryConfig shapes how long a cycle waits for an unavailable service
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"` // 0 retries forever
	BaseDelay       time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor   float64       `json:"backoff_factor" yaml:"backoff_factor"`
	Jitter          bool          `json:"jitter" yaml:"jitter"`
	RetryableErrors []int         `json:"retryable_errors" yaml:"retryable_errors"`
}

// DefaultRetryConfig waits for a remote service with a fixed one second
// delay and never gives up.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     0,
		BaseDelay:       time.Second,
		MaxDelay:        time.Second,
		BackoffFactor:   1.0,
		Jitter:          false,
		RetryableErrors: []int{429, 500, 502, 503, 504},
	}
}

// RetryableFunc is one attempt
type RetryableFunc func(ctx context.Context) error

// RetryNotify is called before sleeping between attempts.
type RetryNotify func(attempt int, err error, delay time.Duration)

// RetryManager repeats an attempt until it succeeds or stops being retryable
type RetryManager struct {
	config *RetryConfig
	notify RetryNotify
}

// NewRetryManager uses DefaultRetryConfig when config is nil
func NewRetryManager(config *RetryConfig) *RetryManager {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryManager{config: config}
}

// OnRetry registers a callback for every failed, retryable attempt.
func (rm *RetryManager) OnRetry(fn RetryNotify) *RetryManager {
	rm.notify = fn
	return rm
}

// Config returns the retry configuration.
func (rm *RetryManager) Config() RetryConfig {
	return *rm.config
}

// Execute runs fn until it succeeds, returns a non-retryable error, the
// attempt budget runs out, or ctx is done.
func (rm *RetryManager) Execute(ctx context.Context, fn RetryableFunc) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !rm.isRetryableError(err) {
			return err
		}

		if rm.config.MaxAttempts > 0 && attempt >= rm.config.MaxAttempts {
			return fmt.Errorf("max retries exceeded after %d attempts: %w", attempt, err)
		}

		delay := rm.backoff(attempt - 1)
		if rm.notify != nil {
			rm.notify(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// isRetryableError accepts outages, open breakers and configured statuses.
// Cancellation always stops the loop.
func (rm *RetryManager) isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, core.ErrServiceUnavailable) {
		return true
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	var httpErr *HTTPError
	return errors.As(err, &httpErr) && slices.Contains(rm.config.RetryableErrors, httpErr.StatusCode)
}

// backoff is BaseDelay*BackoffFactor^n capped at MaxDelay, optionally
// spread by up to a quarter either way
func (rm *RetryManager) backoff(n int) time.Duration {
	cfg := rm.config
	growth := math.Max(cfg.BackoffFactor, 1)
	d := float64(cfg.BaseDelay) * math.Pow(growth, float64(n))
	if cfg.MaxDelay > 0 {
		d = math.Min(d, float64(cfg.MaxDelay))
	}
	if cfg.Jitter {
		d += d * (rand.Float64() - 0.5) / 2
	}
	return time.Duration(d)
}
