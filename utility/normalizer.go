package utility

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/snow-ghost/adaptmgr/core"
)

// SeedSpan is the upper bound given to a metric the first time it is seen,
// so that the initial span is never zero.
const SeedSpan = 1e-12

// Bounds is the observed [Lower, Upper] range of one metric. Bounds only widen.
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Span returns Upper - Lower.
func (b Bounds) Span() float64 { return b.Upper - b.Lower }

// RangeNormalizer maps raw metric values into [0,1] relative to every value
// seen so far for that metric. It is not safe for concurrent use; the
// controller serializes access for a whole cycle.
type RangeNormalizer struct {
	bounds map[string]*Bounds
	logger *zap.Logger
}

// NewRangeNormalizer creates a normalizer with no history. A nil logger is replaced by a no-op.
func NewRangeNormalizer(logger *zap.Logger) *RangeNormalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RangeNormalizer{
		bounds: make(map[string]*Bounds),
		logger: logger,
	}
}

// Normalize widens the bounds of name to include value and returns the
// position of value inside the widened bounds. A zero-width span yields 0.
func (n *RangeNormalizer) Normalize(name string, value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		n.logger.Warn("ignoring non-finite metric value",
			zap.String("metric", name),
			zap.Float64("value", value),
		)
		return 0
	}

	b, ok := n.bounds[name]
	if !ok {
		b = &Bounds{Lower: 0, Upper: SeedSpan}
		n.bounds[name] = b
	}

	if value > b.Upper {
		b.Upper = value
	} else if value < b.Lower {
		b.Lower = value
	}

	span := b.Span()
	if span <= 0 {
		n.logger.Warn("zero-width normalization span",
			zap.String("metric", name),
			zap.Float64("value", value),
			zap.Error(fmt.Errorf("%w: [%g, %g]", core.ErrDegenerateSpan, b.Lower, b.Upper)),
		)
		return 0
	}
	return (value - b.Lower) / span
}

// Bounds returns the current bounds of name.
func (n *RangeNormalizer) Bounds(name string) (Bounds, bool) {
	b, ok := n.bounds[name]
	if !ok {
		return Bounds{}, false
	}
	return *b, true
}

// Snapshot copies the bounds of every metric seen so far.
func (n *RangeNormalizer) Snapshot() map[string]Bounds {
	out := make(map[string]Bounds, len(n.bounds))
	for name, b := range n.bounds {
		out[name] = *b
	}
	return out
}

// Metrics lists known metric names in sorted order.
func (n *RangeNormalizer) Metrics() []string {
	names := make([]string, 0, len(n.bounds))
	for name := range n.bounds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
