package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ProtectionManager combines retries and per-service circuit breakers for
// calls to remote services.
type ProtectionManager struct {
	retryManager   *RetryManager
	circuitBreaker *CircuitBreakerManager
	logger         *zap.Logger
	onRetry        func(service string, attempt int, err error)
}

// NewProtectionManager creates a new protection manager
func NewProtectionManager(retry *RetryConfig, breaker *CircuitBreakerConfig, logger *zap.Logger) *ProtectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProtectionManager{
		retryManager:   NewRetryManager(retry),
		circuitBreaker: NewCircuitBreakerManager(breaker, logger),
		logger:         logger,
	}
}

// OnRetry registers a callback invoked for each failed attempt that will be retried.
func (pm *ProtectionManager) OnRetry(fn func(service string, attempt int, err error)) {
	pm.onRetry = fn
}

// Breakers exposes the circuit breaker manager.
func (pm *ProtectionManager) Breakers() *CircuitBreakerManager {
	return pm.circuitBreaker
}

// Call runs fn through the breaker of service, retrying per the retry
// configuration. With the default configuration Call blocks until fn
// succeeds or ctx is done.
func (pm *ProtectionManager) Call(ctx context.Context, service string, fn func(ctx context.Context) error) error {
	rm := &RetryManager{
		config: pm.retryManager.config,
		notify: func(attempt int, err error, delay time.Duration) {
			pm.logger.Info("service not available, waiting again",
				zap.String("service", service),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if pm.onRetry != nil {
				pm.onRetry(service, attempt, err)
			}
		},
	}

	return rm.Execute(ctx, func(ctx context.Context) error {
		_, err := pm.circuitBreaker.Execute(ctx, service, func(ctx context.Context) (interface{}, error) {
			return nil, fn(ctx)
		})
		return err
	})
}

// GetStats returns breaker and retry statistics for service
func (pm *ProtectionManager) GetStats(service string) map[string]interface{} {
	cfg := pm.retryManager.config
	return map[string]interface{}{
		"service":         service,
		"circuit_breaker": pm.circuitBreaker.GetStats(service),
		"retry_config": map[string]interface{}{
			"max_attempts":   cfg.MaxAttempts,
			"base_delay":     cfg.BaseDelay.String(),
			"max_delay":      cfg.MaxDelay.String(),
			"backoff_factor": cfg.BackoffFactor,
			"jitter":         cfg.Jitter,
		},
	}
}
