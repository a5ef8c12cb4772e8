// Package controller drives the adaptation cycle: it fetches measurements,
// folds them into a utility, reports the running average, enumerates the
// configuration space and publishes the combined snapshot.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/snow-ghost/adaptmgr/configspace"
	"github.com/snow-ghost/adaptmgr/core"
	"github.com/snow-ghost/adaptmgr/pkg/history"
	"github.com/snow-ghost/adaptmgr/pkg/limiter"
	"github.com/snow-ghost/adaptmgr/pkg/metrics"
	"github.com/snow-ghost/adaptmgr/pkg/tracing"
	"github.com/snow-ghost/adaptmgr/transport/httpapi"
	"github.com/snow-ghost/adaptmgr/utility"
)

// Ports are the remote collaborators of a controller
type Ports struct {
	Metrics    core.MetricsSource
	Knobs      core.KnobSource
	Blackboard core.Blackboard
	Publisher  core.StatePublisher
}

// Controller runs adaptation cycles one at a time. Bounds and the running
// utility are owned by the controller and only touched while cycleMu is held.
type Controller struct {
	ports Ports

	cycleMu    sync.Mutex
	cycle      uint64
	normalizer *utility.RangeNormalizer
	aggregator *utility.Aggregator

	state atomic.Int32

	// copies taken at the end of Aggregating, readable during a cycle
	snapMu  sync.RWMutex
	bounds  map[string]utility.Bounds
	running utility.RunningUtility

	period     time.Duration
	retry      *limiter.RetryConfig
	breaker    *limiter.CircuitBreakerConfig
	protection *limiter.ProtectionManager
	builder    *configspace.CachedBuilder
	filter     core.ConfigurationFilter
	history    history.Recorder
	metrics    *metrics.PrometheusMetrics
	tracer     *tracing.Tracer
	logger     *zap.Logger
	observer   func(State)
}

// New creates a controller. Every port is required.
func New(ports Ports, opts ...Option) (*Controller, error) {
	if ports.Metrics == nil || ports.Knobs == nil || ports.Blackboard == nil || ports.Publisher == nil {
		return nil, errors.New("controller: metrics, knobs, blackboard and publisher ports are required")
	}

	c := &Controller{
		ports:  ports,
		period: DefaultPeriod,
		bounds: make(map[string]utility.Bounds),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = metrics.NewPrometheusMetrics()
	}
	if c.tracer == nil {
		c.tracer = tracing.NewNoopTracer()
	}
	if c.builder == nil {
		b, err := configspace.NewCachedBuilder(configspace.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		c.builder = b
	}

	c.normalizer = utility.NewRangeNormalizer(c.logger.Named("normalizer"))
	c.aggregator = utility.NewAggregator(c.normalizer, c.logger.Named("aggregator"))

	c.protection = limiter.NewProtectionManager(c.retry, c.breaker, c.logger.Named("protection"))
	c.protection.OnRetry(func(service string, attempt int, err error) {
		c.metrics.RecordRetry(service)
	})
	c.protection.Breakers().OnStateChange(func(service string, from, to gobreaker.State) {
		c.metrics.RecordCircuitState(service, to.String())
	})

	return c, nil
}

// State returns the phase the controller is currently in
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Period returns the trigger interval used by Run
func (c *Controller) Period() time.Duration {
	return c.period
}

// Bounds returns the normalization bounds as of the last aggregation
func (c *Controller) Bounds() map[string]utility.Bounds {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	out := make(map[string]utility.Bounds, len(c.bounds))
	for k, v := range c.bounds {
		out[k] = v
	}
	return out
}

// Running returns the running utility as of the last aggregation
func (c *Controller) Running() utility.RunningUtility {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.running
}

// Run triggers a cycle every period until ctx is done. A trigger that fires
// while the previous cycle is still running is dropped.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	c.logger.Info("adaptation manager started", zap.Duration("period", c.period))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("adaptation manager stopping")
			return nil
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Trigger(ctx)
			}()
		}
	}
}

// Trigger starts a cycle unless one is already running, in which case it
// returns false immediately.
func (c *Controller) Trigger(ctx context.Context) (bool, error) {
	if !c.cycleMu.TryLock() {
		c.metrics.TriggersDropped.Inc()
		c.logger.Debug("cycle still running, trigger dropped", zap.String("state", c.State().String()))
		return false, nil
	}
	defer c.cycleMu.Unlock()
	return true, c.runCycle(ctx)
}

// RunCycle waits for any running cycle to finish and then runs one.
func (c *Controller) RunCycle(ctx context.Context) error {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	return c.runCycle(ctx)
}

func (c *Controller) runCycle(ctx context.Context) (err error) {
	start := time.Now()
	c.cycle++
	cycle := c.cycle
	cycleID := uuid.NewString()
	logger := c.logger.With(zap.Uint64("cycle", cycle), zap.String("cycle_id", cycleID))

	ctx, span := c.tracer.StartCycleSpan(ctx, cycle, cycleID)
	defer func() {
		outcome := OutcomeCompleted
		if err != nil {
			outcome = OutcomeAbandoned
			tracing.RecordSpanError(span, err)
		} else {
			tracing.RecordSpanSuccess(span)
		}
		tracing.RecordSpanDuration(span, time.Since(start))
		span.End()
		c.metrics.RecordCycle(outcome, time.Since(start))
		c.enter(Idle)
	}()

	// FetchingMetrics
	phaseCtx, phase := c.beginPhase(ctx, FetchingMetrics)
	var observations []core.MetricObservation
	fetchErr := c.fetch(phaseCtx, ServiceMetrics, func(ctx context.Context) error {
		obs, err := c.ports.Metrics.GetMetrics(ctx)
		observations = obs
		return err
	})
	endPhase(phase, fetchErr)
	if fetchErr != nil {
		logger.Error("abandoning cycle, metrics unavailable", zap.Error(fetchErr))
		return fmt.Errorf("cycle %d: fetch metrics: %w", cycle, fetchErr)
	}

	// Aggregating
	_, phase = c.beginPhase(ctx, Aggregating)
	qrValues, cycleUtility, aggErr := c.aggregator.Aggregate(observations)
	valid := aggErr == nil
	if valid {
		c.aggregator.Update(cycleUtility)
		tracing.RecordSpanUtility(phase, cycleUtility, c.average())
	}
	c.takeSnapshot()
	endPhase(phase, aggErr)

	average := c.average()
	reported := false
	if valid {
		c.metrics.RecordUtility(cycleUtility, average)
		for _, qr := range qrValues {
			c.metrics.RecordFulfilment(qr.Name, qr.Fulfilment)
		}
		logger.Info("cycle utility computed",
			zap.Float64("cycle_utility", cycleUtility),
			zap.Float64("average_utility", average),
			zap.Int("qrs", len(qrValues)),
		)

		// ReportingUtility
		phaseCtx, phase = c.beginPhase(ctx, ReportingUtility)
		reported = c.reportUtility(phaseCtx, logger, average)
		phase.End()
	} else {
		c.metrics.InvalidMeasures.Inc()
		logger.Warn("invalid measurement set, skipping utility report",
			zap.Int("observations", len(observations)),
			zap.Error(aggErr),
		)
		qrValues = []core.QRValue{}
		cycleUtility = 0
	}

	// FetchingKnobs
	phaseCtx, phase = c.beginPhase(ctx, FetchingKnobs)
	var knobs []core.Knob
	fetchErr = c.fetch(phaseCtx, ServiceKnobs, func(ctx context.Context) error {
		k, err := c.ports.Knobs.GetKnobs(ctx)
		knobs = k
		return err
	})
	endPhase(phase, fetchErr)
	if fetchErr != nil {
		logger.Error("abandoning cycle, knobs unavailable", zap.Error(fetchErr))
		return fmt.Errorf("cycle %d: fetch knobs: %w", cycle, fetchErr)
	}

	// BuildingConfigs
	_, phase = c.beginPhase(ctx, BuildingConfigs)
	configs := c.builder.Build(knobs)
	if c.filter != nil {
		before := len(configs)
		configs = configspace.Filter(configs, c.filter)
		logger.Debug("configurations filtered", zap.Int("before", before), zap.Int("after", len(configs)))
	}
	tracing.RecordSpanSpace(phase, len(knobs), len(configs))
	c.metrics.RecordSpace(len(knobs), len(configs))
	phase.End()

	// Publishing
	phaseCtx, phase = c.beginPhase(ctx, Publishing)
	state := core.AdaptationState{
		CycleID:                cycleID,
		Cycle:                  cycle,
		Timestamp:              time.Now().UTC(),
		QRValues:               qrValues,
		PossibleConfigurations: configs,
		CycleUtility:           cycleUtility,
		AverageUtility:         average,
		UtilityReported:        reported,
	}
	if err := c.ports.Publisher.Publish(phaseCtx, state); err != nil {
		logger.Error("failed to publish adaptation state", zap.Error(err))
		tracing.RecordSpanError(phase, err)
	} else {
		logger.Info("adaptation state published",
			zap.Int("qr_values", len(qrValues)),
			zap.Int("knobs", len(knobs)),
			zap.Int("configurations", len(configs)),
		)
	}
	phase.End()

	c.recordHistory(logger, history.CycleRecord{
		CycleID:         cycleID,
		Cycle:           cycle,
		Timestamp:       state.Timestamp,
		CycleUtility:    cycleUtility,
		AverageUtility:  average,
		UtilityValid:    valid,
		UtilityReported: reported,
		QRCount:         len(observations),
		KnobCount:       len(knobs),
		Configurations:  len(configs),
	})
	return nil
}

// fetch blocks until fn succeeds, the retry budget runs out or ctx is done
func (c *Controller) fetch(ctx context.Context, service string, fn func(ctx context.Context) error) error {
	ctx, span := c.tracer.StartServiceSpan(ctx, service)
	defer span.End()

	err := c.protection.Call(ctx, service, fn)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return err
	}
	tracing.RecordSpanSuccess(span)
	return nil
}

// reportUtility writes the running average to the blackboard once. Failures
// are logged and not retried.
func (c *Controller) reportUtility(ctx context.Context, logger *zap.Logger, average float64) bool {
	ctx, span := c.tracer.StartServiceSpan(ctx, ServiceBlackboard)
	defer span.End()

	value := httpapi.FormatUtility(average)
	ok, err := c.ports.Blackboard.SetValue(ctx, core.AverageUtilityKey, value)
	switch {
	case err != nil:
		c.metrics.RecordUtilityReport("error")
		tracing.RecordSpanError(span, err)
		logger.Warn("failed to report utility", zap.String("value", value), zap.Error(err))
		return false
	case !ok:
		c.metrics.RecordUtilityReport("rejected")
		logger.Warn("blackboard rejected utility", zap.String("value", value))
		return false
	default:
		c.metrics.RecordUtilityReport("ok")
		tracing.RecordSpanSuccess(span)
		logger.Debug("utility reported", zap.String("key", core.AverageUtilityKey), zap.String("value", value))
		return true
	}
}

func (c *Controller) recordHistory(logger *zap.Logger, record history.CycleRecord) {
	if c.history == nil {
		return
	}
	if err := c.history.Record(record); err != nil {
		logger.Warn("failed to record cycle history", zap.Error(err))
	}
}

func (c *Controller) average() float64 {
	avg, _ := c.aggregator.Running().Average()
	return avg
}

func (c *Controller) takeSnapshot() {
	bounds := c.normalizer.Snapshot()
	running := c.aggregator.Running()

	c.snapMu.Lock()
	c.bounds = bounds
	c.running = running
	c.snapMu.Unlock()
}

func (c *Controller) enter(s State) {
	c.state.Store(int32(s))
	c.metrics.RecordState(s.String())
	if c.observer != nil {
		c.observer(s)
	}
}

func (c *Controller) beginPhase(ctx context.Context, s State) (context.Context, trace.Span) {
	c.enter(s)
	return c.tracer.StartPhaseSpan(ctx, s.String())
}

func endPhase(span trace.Span, err error) {
	if err != nil {
		tracing.RecordSpanError(span, err)
	}
	span.End()
}
