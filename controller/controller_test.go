package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/adaptmgr/core"
	"github.com/snow-ghost/adaptmgr/pkg/history"
	"github.com/snow-ghost/adaptmgr/pkg/limiter"
	"github.com/snow-ghost/adaptmgr/pkg/metrics"
	"github.com/snow-ghost/adaptmgr/utility"
)

type fakeMetrics struct {
	mu       sync.Mutex
	obs      []core.MetricObservation
	failures int // -1 fails forever
	calls    int
}

func (f *fakeMetrics) set(obs ...core.MetricObservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = obs
}

func (f *fakeMetrics) GetMetrics(ctx context.Context) ([]core.MetricObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return nil, core.ErrServiceUnavailable
	}
	return append([]core.MetricObservation(nil), f.obs...), nil
}

type fakeKnobs struct {
	knobs   []core.Knob
	entered chan struct{}
	release chan struct{}
}

func (f *fakeKnobs) GetKnobs(ctx context.Context) ([]core.Knob, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.knobs, nil
}

type write struct{ key, value string }

type fakeBlackboard struct {
	mu     sync.Mutex
	writes []write
	reject bool
	err    error
}

func (f *fakeBlackboard) SetValue(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.writes = append(f.writes, write{key, value})
	return !f.reject, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	states []core.AdaptationState
}

func (f *fakePublisher) Publish(ctx context.Context, state core.AdaptationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

func (f *fakePublisher) last() core.AdaptationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[len(f.states)-1]
}

type fixture struct {
	metrics    *fakeMetrics
	knobs      *fakeKnobs
	blackboard *fakeBlackboard
	publisher  *fakePublisher
	prom       *metrics.PrometheusMetrics
}

func (f *fixture) ports() Ports {
	return Ports{Metrics: f.metrics, Knobs: f.knobs, Blackboard: f.blackboard, Publisher: f.publisher}
}

func newFixture() *fixture {
	return &fixture{
		metrics: &fakeMetrics{obs: []core.MetricObservation{
			{Name: "latency", RawValue: 5, Weight: 1},
			{Name: "throughput", RawValue: 50, Weight: 3},
		}},
		knobs: &fakeKnobs{knobs: []core.Knob{
			{Name: "k1", OwnerID: "n1", AdmissibleValues: []core.Value{core.IntValue(1), core.IntValue(2)}},
			{Name: "k2", OwnerID: "n2", AdmissibleValues: []core.Value{
				core.StringValue("a"), core.StringValue("b"), core.StringValue("c"),
			}},
		}},
		blackboard: &fakeBlackboard{},
		publisher:  &fakePublisher{},
		prom:       metrics.NewPrometheusMetrics(),
	}
}

func fastRetry(maxAttempts int) *limiter.RetryConfig {
	return &limiter.RetryConfig{
		MaxAttempts:   maxAttempts,
		BaseDelay:     time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
	}
}

// lenientBreaker never opens so that retries reach the fake on every attempt
func lenientBreaker() *limiter.CircuitBreakerConfig {
	return &limiter.CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return false },
	}
}

func (f *fixture) controller(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	base := []Option{
		WithMetrics(f.prom),
		WithRetry(fastRetry(0)),
		WithBreaker(lenientBreaker()),
	}
	c, err := New(f.ports(), append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewRequiresPorts(t *testing.T) {
	_, err := New(Ports{})
	require.Error(t, err)
}

func TestEndToEndFirstCycle(t *testing.T) {
	f := newFixture()
	rec := history.NewMemoryRecorder(0)
	c := f.controller(t, WithHistory(rec))

	require.NoError(t, c.RunCycle(context.Background()))

	// first sight of each metric widens the upper bound, so both normalize to 1
	state := f.publisher.last()
	require.Equal(t, []core.QRValue{
		{Name: "latency", Fulfilment: 0.25},
		{Name: "throughput", Fulfilment: 0.75},
	}, state.QRValues)
	require.Equal(t, 0.1875, state.CycleUtility)
	require.Equal(t, 0.1875, state.AverageUtility)
	require.True(t, state.UtilityReported)
	require.Equal(t, uint64(1), state.Cycle)
	require.NotEmpty(t, state.CycleID)
	require.Len(t, state.PossibleConfigurations, 6)

	require.Equal(t, []write{{core.AverageUtilityKey, "0.1875"}}, f.blackboard.writes)

	require.Equal(t, utility.Bounds{Lower: 0, Upper: 5}, c.Bounds()["latency"])
	require.Equal(t, uint64(1), c.Running().CycleCount)
	require.Equal(t, Idle, c.State())

	records, err := rec.List(history.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 6, records[0].Configurations)
	require.True(t, records[0].UtilityValid)
	require.True(t, records[0].UtilityReported)

	require.Equal(t, 1.0, testutil.ToFloat64(f.prom.CyclesTotal.WithLabelValues(OutcomeCompleted)))
	require.Equal(t, 0.1875, testutil.ToFloat64(f.prom.AverageUtility))
	require.Equal(t, 6.0, testutil.ToFloat64(f.prom.Configurations))
}

func TestRunningAverageAcrossCycles(t *testing.T) {
	f := newFixture()
	c := f.controller(t)
	require.NoError(t, c.RunCycle(context.Background()))

	f.metrics.set(
		core.MetricObservation{Name: "latency", RawValue: 2.5, Weight: 1},
		core.MetricObservation{Name: "throughput", RawValue: 25, Weight: 3},
	)
	require.NoError(t, c.RunCycle(context.Background()))

	state := f.publisher.last()
	require.Equal(t, 0.046875, state.CycleUtility)
	require.Equal(t, 0.1171875, state.AverageUtility)
	require.Equal(t, write{core.AverageUtilityKey, "0.1171875"}, f.blackboard.writes[1])
	require.Equal(t, uint64(2), state.Cycle)
}

func TestStateSequence(t *testing.T) {
	var seen []State
	f := newFixture()
	c := f.controller(t, WithStateObserver(func(s State) { seen = append(seen, s) }))

	require.NoError(t, c.RunCycle(context.Background()))
	require.Equal(t, []State{
		FetchingMetrics, Aggregating, ReportingUtility, FetchingKnobs, BuildingConfigs, Publishing, Idle,
	}, seen)
}

func TestInvalidMeasurementSetSkipsReport(t *testing.T) {
	var seen []State
	f := newFixture()
	f.metrics.set()
	c := f.controller(t, WithStateObserver(func(s State) { seen = append(seen, s) }))

	require.NoError(t, c.RunCycle(context.Background()))

	require.Equal(t, []State{
		FetchingMetrics, Aggregating, FetchingKnobs, BuildingConfigs, Publishing, Idle,
	}, seen)
	require.Empty(t, f.blackboard.writes)
	require.Equal(t, uint64(0), c.Running().CycleCount)

	state := f.publisher.last()
	require.Empty(t, state.QRValues)
	require.NotNil(t, state.QRValues)
	require.Len(t, state.PossibleConfigurations, 6)
	require.False(t, state.UtilityReported)
	require.Equal(t, 1.0, testutil.ToFloat64(f.prom.InvalidMeasures))
}

func TestZeroWeightsLeaveAverageUnchanged(t *testing.T) {
	f := newFixture()
	c := f.controller(t)
	require.NoError(t, c.RunCycle(context.Background()))

	f.metrics.set(core.MetricObservation{Name: "latency", RawValue: 1, Weight: 0})
	require.NoError(t, c.RunCycle(context.Background()))

	state := f.publisher.last()
	require.Equal(t, 0.1875, state.AverageUtility)
	require.Len(t, f.blackboard.writes, 1)
	require.Equal(t, uint64(1), c.Running().CycleCount)
}

func TestFetchRetriesUntilAvailable(t *testing.T) {
	f := newFixture()
	f.metrics.failures = 3
	c := f.controller(t)

	require.NoError(t, c.RunCycle(context.Background()))
	require.Equal(t, 4, f.metrics.calls)
	require.Equal(t, 1, f.publisher.count())
	require.Equal(t, 3.0, testutil.ToFloat64(f.prom.FetchRetriesTotal.WithLabelValues(ServiceMetrics)))
}

func TestBoundedRetryAbandonsCycle(t *testing.T) {
	f := newFixture()
	f.metrics.failures = -1
	c := f.controller(t, WithRetry(fastRetry(2)))

	err := c.RunCycle(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, core.ErrServiceUnavailable))
	require.Equal(t, 2, f.metrics.calls)
	require.Equal(t, 0, f.publisher.count())
	require.Equal(t, Idle, c.State())
	require.Equal(t, 1.0, testutil.ToFloat64(f.prom.CyclesTotal.WithLabelValues(OutcomeAbandoned)))
}

func TestCancelStopsIndefiniteWait(t *testing.T) {
	f := newFixture()
	f.metrics.failures = -1
	c := f.controller(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.RunCycle(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, f.publisher.count())
}

func TestBlackboardFailureIsBestEffort(t *testing.T) {
	f := newFixture()
	f.blackboard.err = errors.New("blackboard down")
	c := f.controller(t)

	require.NoError(t, c.RunCycle(context.Background()))
	state := f.publisher.last()
	require.False(t, state.UtilityReported)
	require.Equal(t, 0.1875, state.AverageUtility)
	require.Equal(t, 1.0, testutil.ToFloat64(f.prom.UtilityReports.WithLabelValues("error")))

	f.blackboard.err = nil
	f.blackboard.reject = true
	require.NoError(t, c.RunCycle(context.Background()))
	require.False(t, f.publisher.last().UtilityReported)
	require.Equal(t, 1.0, testutil.ToFloat64(f.prom.UtilityReports.WithLabelValues("rejected")))
}

func TestTriggerDroppedWhileCycleRuns(t *testing.T) {
	f := newFixture()
	f.knobs.entered = make(chan struct{}, 1)
	f.knobs.release = make(chan struct{})
	c := f.controller(t)

	type result struct {
		ran bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ran, err := c.Trigger(context.Background())
		done <- result{ran, err}
	}()

	<-f.knobs.entered
	require.Equal(t, FetchingKnobs, c.State())

	ran, err := c.Trigger(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, 1.0, testutil.ToFloat64(f.prom.TriggersDropped))

	close(f.knobs.release)
	first := <-done
	require.True(t, first.ran)
	require.NoError(t, first.err)
	require.Equal(t, 1, f.publisher.count())
}

func TestFilterAppliedAfterBuild(t *testing.T) {
	f := newFixture()
	c := f.controller(t, WithFilter(func(cfg core.Configuration) bool {
		a, ok := cfg.Lookup("k1")
		return ok && a.Value == core.IntValue(1)
	}))

	require.NoError(t, c.RunCycle(context.Background()))
	configs := f.publisher.last().PossibleConfigurations
	require.Len(t, configs, 3)
	for _, cfg := range configs {
		require.Equal(t, core.IntValue(1), cfg.Assignments[0].Value)
		require.Equal(t, []string{"n1", "n2"}, cfg.OwnerIDs)
	}
}

func TestEmptyCataloguePublishesEmptySpace(t *testing.T) {
	f := newFixture()
	f.knobs.knobs = []core.Knob{{Name: "dead", OwnerID: "n1"}}
	c := f.controller(t)

	require.NoError(t, c.RunCycle(context.Background()))
	configs := f.publisher.last().PossibleConfigurations
	require.NotNil(t, configs)
	require.Empty(t, configs)
}

func TestRunTriggersPeriodically(t *testing.T) {
	f := newFixture()
	c := f.controller(t, WithPeriod(5*time.Millisecond))
	require.Equal(t, 5*time.Millisecond, c.Period())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return f.publisher.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", Idle.String())
	require.Equal(t, "reporting_utility", ReportingUtility.String())
	require.Equal(t, "unknown", State(42).String())
	require.Equal(t, DefaultPeriod, (&Controller{period: DefaultPeriod}).Period())
}
