package controller

import (
	"time"

	"go.uber.org/zap"

	"github.com/snow-ghost/adaptmgr/configspace"
	"github.com/snow-ghost/adaptmgr/core"
	"github.com/snow-ghost/adaptmgr/pkg/history"
	"github.com/snow-ghost/adaptmgr/pkg/limiter"
	"github.com/snow-ghost/adaptmgr/pkg/metrics"
	"github.com/snow-ghost/adaptmgr/pkg/tracing"
)

// DefaultPeriod is the cycle period when none is configured
const DefaultPeriod = 8 * time.Second

// Option configures a Controller
type Option func(*Controller)

// WithPeriod sets the interval between triggers in Run
func WithPeriod(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.period = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus instruments
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracer sets the tracer
func WithTracer(t *tracing.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithHistory records every cycle that reaches Publishing
func WithHistory(r history.Recorder) Option {
	return func(c *Controller) {
		c.history = r
	}
}

// WithFilter drops configurations that violate cross-knob constraints
func WithFilter(filter core.ConfigurationFilter) Option {
	return func(c *Controller) {
		c.filter = filter
	}
}

// WithRetry sets the fetch retry policy. MaxAttempts 0 waits forever.
func WithRetry(cfg *limiter.RetryConfig) Option {
	return func(c *Controller) {
		c.retry = cfg
	}
}

// WithBreaker sets the per-service circuit breaker policy
func WithBreaker(cfg *limiter.CircuitBreakerConfig) Option {
	return func(c *Controller) {
		c.breaker = cfg
	}
}

// WithBuilder replaces the memoizing configuration space builder
func WithBuilder(b *configspace.CachedBuilder) Option {
	return func(c *Controller) {
		c.builder = b
	}
}

// WithStateObserver is called on every state entry, from the cycle goroutine
func WithStateObserver(fn func(State)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}
