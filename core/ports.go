package core

import "context"

// MetricsSource answers GetMetrics.
type MetricsSource interface {
	GetMetrics(ctx context.Context) ([]MetricObservation, error)
}

// KnobSource answers GetKnobs.
type KnobSource interface {
	GetKnobs(ctx context.Context) ([]Knob, error)
}

// Blackboard is the shared state store that receives ReportUtility.
type Blackboard interface {
	SetValue(ctx context.Context, key, value string) (bool, error)
}

// StatePublisher broadcasts PublishAdaptationState.
type StatePublisher interface {
	Publish(ctx context.Context, state AdaptationState) error
}

// ConfigurationFilter reports whether a configuration satisfies cross-knob constraints.
type ConfigurationFilter func(Configuration) bool

// AverageUtilityKey is the blackboard key written by ReportUtility.
const AverageUtilityKey = "average_utility"
