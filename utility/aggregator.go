package utility

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/snow-ghost/adaptmgr/core"
)

// RunningUtility is the mean of every cycle utility accepted so far.
type RunningUtility struct {
	AccumulatedSum float64 `json:"accumulated_sum"`
	CycleCount     uint64  `json:"cycle_count"`
}

// Average returns AccumulatedSum / CycleCount, or false before the first cycle.
func (r RunningUtility) Average() (float64, bool) {
	if r.CycleCount == 0 {
		return 0, false
	}
	return r.AccumulatedSum / float64(r.CycleCount), true
}

// Aggregator folds weighted observations into a single cycle utility and
// keeps the running average across cycles.
type Aggregator struct {
	normalizer *RangeNormalizer
	running    RunningUtility
	logger     *zap.Logger
}

// NewAggregator creates an aggregator that normalizes through n.
func NewAggregator(n *RangeNormalizer, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{normalizer: n, logger: logger}
}

// Aggregate normalizes each observation, scales it by its share of the total
// weight and multiplies the shares together. A set that is empty or whose
// weights do not sum to a positive value is rejected before any bounds move.
func (a *Aggregator) Aggregate(observations []core.MetricObservation) ([]core.QRValue, float64, error) {
	if len(observations) == 0 {
		return nil, 0, fmt.Errorf("%w: no observations", core.ErrInvalidMeasurementSet)
	}

	weightSum := 0.0
	for _, o := range observations {
		weightSum += o.Weight
	}
	if !(weightSum > 0) {
		return nil, 0, fmt.Errorf("%w: weight sum %g", core.ErrInvalidMeasurementSet, weightSum)
	}

	values := make([]core.QRValue, 0, len(observations))
	cycleUtility := 1.0
	for _, o := range observations {
		normalized := a.normalizer.Normalize(o.Name, o.RawValue)
		fulfilment := normalized * (o.Weight / weightSum)
		a.logger.Debug("metric normalized",
			zap.String("metric", o.Name),
			zap.Float64("raw", o.RawValue),
			zap.Float64("normalized", normalized),
			zap.Float64("fulfilment", fulfilment),
		)
		values = append(values, core.QRValue{Name: o.Name, Fulfilment: fulfilment})
		cycleUtility *= fulfilment
	}

	return values, cycleUtility, nil
}

// Update folds cycleUtility into the running average and returns the new average.
func (a *Aggregator) Update(cycleUtility float64) float64 {
	a.running.AccumulatedSum += cycleUtility
	a.running.CycleCount++
	avg, _ := a.running.Average()
	return avg
}

// Running returns a copy of the running utility.
func (a *Aggregator) Running() RunningUtility {
	return a.running
}

// Normalizer returns the normalizer the aggregator writes bounds through.
func (a *Aggregator) Normalizer() *RangeNormalizer {
	return a.normalizer
}
