package observability

import (
	"context"
	"errors"

	"github.com/snow-ghost/adaptmgr/pkg/logging"
	"github.com/snow-ghost/adaptmgr/pkg/metrics"
	"github.com/snow-ghost/adaptmgr/pkg/tracing"
)

// Manager owns the logger, Prometheus instruments and tracer of one process
type Manager struct {
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
	logger  *logging.Logger
}

// NewManager creates all observability components
func NewManager(logConfig logging.Config, traceConfig tracing.Config) (*Manager, error) {
	logger, err := logging.NewLogger(logConfig)
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.NewTracer(traceConfig)
	if err != nil {
		return nil, err
	}

	return &Manager{
		metrics: metrics.NewPrometheusMetrics(),
		tracer:  tracer,
		logger:  logger,
	}, nil
}

// NewNopManager returns a manager that discards logs and traces
func NewNopManager() *Manager {
	return &Manager{
		metrics: metrics.NewPrometheusMetrics(),
		tracer:  tracing.NewNoopTracer(),
		logger:  logging.NewNop(),
	}
}

// GetMetrics returns the metrics instance
func (m *Manager) GetMetrics() *metrics.PrometheusMetrics {
	return m.metrics
}

// GetTracer returns the tracer instance
func (m *Manager) GetTracer() *tracing.Tracer {
	return m.tracer
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() *logging.Logger {
	return m.logger
}

// Shutdown flushes the tracer and syncs the logger
func (m *Manager) Shutdown(ctx context.Context) error {
	traceErr := m.tracer.Shutdown(ctx)
	// syncing stdout/stderr fails with EINVAL on some platforms
	m.logger.Sync()
	return traceErr
}

// ShutdownAll is Shutdown plus closing extra resources, joining every error
func (m *Manager) ShutdownAll(ctx context.Context, closers ...func() error) error {
	errs := []error{m.Shutdown(ctx)}
	for _, c := range closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
