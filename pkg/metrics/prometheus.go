package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adaptation"

// PrometheusMetrics holds all Prometheus metrics
type PrometheusMetrics struct {
	// Cycle metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	TriggersDropped  prometheus.Counter
	PhaseTransitions *prometheus.CounterVec

	// Utility metrics
	CycleUtility    prometheus.Gauge
	AverageUtility  prometheus.Gauge
	QRFulfilment    *prometheus.GaugeVec
	InvalidMeasures prometheus.Counter
	UtilityReports  *prometheus.CounterVec

	// Configuration space metrics
	Configurations prometheus.Gauge
	Knobs          prometheus.Gauge

	// Remote service metrics
	FetchRetriesTotal *prometheus.CounterVec
	CircuitStateTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics registers the adaptation metrics on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWith(prometheus.NewRegistry())
}

// NewPrometheusMetricsWith registers the adaptation metrics on reg.
func NewPrometheusMetricsWith(reg *prometheus.Registry) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of adaptation cycles by outcome",
			},
			[]string{"outcome"},
		),

		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Wall time of one adaptation cycle, fetch waits included",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
			},
		),

		TriggersDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_dropped_total",
				Help:      "Periodic triggers dropped because a cycle was still running",
			},
		),

		PhaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_transitions_total",
				Help:      "Controller state entries by state",
			},
			[]string{"state"},
		),

		CycleUtility: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cycle_utility",
				Help:      "Composite utility of the last valid cycle",
			},
		),

		AverageUtility: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "average_utility",
				Help:      "Running average utility across all valid cycles",
			},
		),

		QRFulfilment: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "qr_fulfilment",
				Help:      "Weighted normalized fulfilment of each quality requirement",
			},
			[]string{"qr"},
		),

		InvalidMeasures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalid_measurement_sets_total",
				Help:      "Cycles whose measurement set could not produce a utility",
			},
		),

		UtilityReports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "utility_reports_total",
				Help:      "Average utility reports to the blackboard by status",
			},
			[]string{"status"},
		),

		Configurations: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "configurations",
				Help:      "Size of the last published configuration space",
			},
		),

		Knobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "knobs",
				Help:      "Number of knobs in the last catalogue",
			},
		),

		FetchRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Retried calls to remote services",
			},
			[]string{"service"},
		),

		CircuitStateTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_transitions_total",
				Help:      "Circuit breaker transitions by service and target state",
			},
			[]string{"service", "state"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCycle records a finished cycle
func (m *PrometheusMetrics) RecordCycle(outcome string, duration time.Duration) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(duration.Seconds())
}

// RecordState records a controller state entry
func (m *PrometheusMetrics) RecordState(state string) {
	m.PhaseTransitions.WithLabelValues(state).Inc()
}

// RecordUtility records the utilities of a valid cycle
func (m *PrometheusMetrics) RecordUtility(cycleUtility, average float64) {
	m.CycleUtility.Set(cycleUtility)
	m.AverageUtility.Set(average)
}

// RecordFulfilment records one requirement's contribution
func (m *PrometheusMetrics) RecordFulfilment(qr string, fulfilment float64) {
	m.QRFulfilment.WithLabelValues(qr).Set(fulfilment)
}

// RecordUtilityReport records a blackboard write outcome
func (m *PrometheusMetrics) RecordUtilityReport(status string) {
	m.UtilityReports.WithLabelValues(status).Inc()
}

// RecordSpace records the size of the configuration space
func (m *PrometheusMetrics) RecordSpace(knobs, configurations int) {
	m.Knobs.Set(float64(knobs))
	m.Configurations.Set(float64(configurations))
}

// RecordRetry records a retried remote call
func (m *PrometheusMetrics) RecordRetry(service string) {
	m.FetchRetriesTotal.WithLabelValues(service).Inc()
}

// RecordCircuitState records a breaker transition
func (m *PrometheusMetrics) RecordCircuitState(service, state string) {
	m.CircuitStateTotal.WithLabelValues(service, state).Inc()
}
