package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/snow-ghost/adaptmgr/core"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests uint32                             `json:"max_requests" yaml:"max_requests"`
	Interval    time.Duration                      `json:"interval" yaml:"interval"`
	Timeout     time.Duration                      `json:"timeout" yaml:"timeout"`
	ReadyToTrip func(counts gobreaker.Counts) bool `json:"-" yaml:"-"`
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
}

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(service string, from, to gobreaker.State)

// CircuitBreakerManager keeps one breaker per remote service. An open breaker
// fails fast with core.ErrServiceUnavailable, so a waiting caller keeps
// retrying without hammering a service that is still down.
type CircuitBreakerManager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	config   *CircuitBreakerConfig
	logger   *zap.Logger
	onChange StateChangeFunc
	mu       sync.RWMutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager(config *CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerManager {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = DefaultCircuitBreakerConfig().ReadyToTrip
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
		logger:   logger,
	}
}

// OnStateChange registers an observer for breaker transitions.
func (cbm *CircuitBreakerManager) OnStateChange(fn StateChangeFunc) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	cbm.onChange = fn
}

// GetBreaker returns or creates the breaker for service
func (cbm *CircuitBreakerManager) GetBreaker(service string) *gobreaker.CircuitBreaker {
	cbm.mu.RLock()
	breaker, exists := cbm.breakers[service]
	cbm.mu.RUnlock()
	if exists {
		return breaker
	}

	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[service]; exists {
		return breaker
	}

	breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: cbm.config.MaxRequests,
		Interval:    cbm.config.Interval,
		Timeout:     cbm.config.Timeout,
		ReadyToTrip: cbm.config.ReadyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cbm.logger.Info("circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			cbm.mu.RLock()
			fn := cbm.onChange
			cbm.mu.RUnlock()
			if fn != nil {
				fn(name, from, to)
			}
		},
	})
	cbm.breakers[service] = breaker
	return breaker
}

// Execute executes a function through the circuit breaker
func (cbm *CircuitBreakerManager) Execute(ctx context.Context, service string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	breaker := cbm.GetBreaker(service)

	result, err := breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrServiceUnavailable, service, err)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// State returns the state of the breaker for service.
func (cbm *CircuitBreakerManager) State(service string) gobreaker.State {
	return cbm.GetBreaker(service).State()
}

// GetStats returns circuit breaker statistics for a service
func (cbm *CircuitBreakerManager) GetStats(service string) map[string]interface{} {
	breaker := cbm.GetBreaker(service)
	counts := breaker.Counts()

	return map[string]interface{}{
		"service":               service,
		"state":                 breaker.State().String(),
		"requests":              counts.Requests,
		"total_successes":       counts.TotalSuccesses,
		"total_failures":        counts.TotalFailures,
		"consecutive_successes": counts.ConsecutiveSuccesses,
		"consecutive_failures":  counts.ConsecutiveFailures,
	}
}

// Reset forgets the breaker for service.
func (cbm *CircuitBreakerManager) Reset(service string) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	delete(cbm.breakers, service)
}

// IsOpen checks if the circuit breaker is open for a service
func (cbm *CircuitBreakerManager) IsOpen(service string) bool {
	return cbm.State(service) == gobreaker.StateOpen
}

// IsClosed checks if the circuit breaker is closed for a service
func (cbm *CircuitBreakerManager) IsClosed(service string) bool {
	return cbm.State(service) == gobreaker.StateClosed
}
