package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/adaptmgr/configspace"
	"github.com/snow-ghost/adaptmgr/controller"
	"github.com/snow-ghost/adaptmgr/pkg/config"
	"github.com/snow-ghost/adaptmgr/pkg/history"
	"github.com/snow-ghost/adaptmgr/pkg/limiter"
	"github.com/snow-ghost/adaptmgr/pkg/observability"
	"github.com/snow-ghost/adaptmgr/pkg/streaming"
	"github.com/snow-ghost/adaptmgr/transport/httpapi"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run adaptation cycles until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(configPath).Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	obs, err := observability.NewManager(cfg.Log, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to set up observability: %w", err)
	}
	logger := obs.GetLogger()
	zlog := logger.GetZap()

	recorder, err := openHistory(cfg.History)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer func() {
		if err := obs.ShutdownAll(context.Background(), recorder.Close); err != nil {
			zlog.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	builder, err := configspace.NewCachedBuilder(cfg.Cache.Size)
	if err != nil {
		return err
	}

	prom := obs.GetMetrics()
	broker := streaming.NewBroker(zlog.Named("stream"))
	client := httpapi.NewClient(httpapi.ClientConfig{
		MetricsURL:    cfg.Services.MetricsURL,
		KnobsURL:      cfg.Services.KnobsURL,
		BlackboardURL: cfg.Services.BlackboardURL,
		Timeout:       cfg.Services.Timeout,
	}, zlog.Named("client"))

	ctrl, err := controller.New(controller.Ports{
		Metrics:    client,
		Knobs:      client,
		Blackboard: client,
		Publisher:  broker,
	},
		controller.WithPeriod(cfg.Period()),
		controller.WithLogger(zlog.Named("controller")),
		controller.WithMetrics(prom),
		controller.WithTracer(obs.GetTracer()),
		controller.WithHistory(recorder),
		controller.WithBuilder(builder),
		controller.WithRetry(retryConfig(cfg.Retry)),
		controller.WithBreaker(breakerConfig(cfg.Breaker)),
	)
	if err != nil {
		return err
	}

	server := httpapi.NewServer(cfg.ListenAddr, httpapi.Deps{
		State:    broker,
		Stream:   broker,
		Bounds:   ctrl,
		History:  recorder,
		Registry: prom.Registry(),
	}, &limiter.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, logger.Named("http"))

	zlog.Info("starting adaptation manager",
		zap.Duration("period", cfg.Period()),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("metrics_url", cfg.Services.MetricsURL),
		zap.String("knobs_url", cfg.Services.KnobsURL),
		zap.Int("retry_max_attempts", cfg.Retry.MaxAttempts),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(ctx) })
	g.Go(func() error { return server.ListenAndServe(ctx) })
	return g.Wait()
}

func openHistory(cfg config.History) (history.Recorder, error) {
	if cfg.Driver == "memory" {
		return history.NewMemoryRecorder(cfg.Limit), nil
	}
	return history.New(cfg.Driver, cfg.Path)
}

func retryConfig(cfg config.Retry) *limiter.RetryConfig {
	rc := limiter.DefaultRetryConfig()
	rc.BaseDelay = cfg.Delay
	rc.MaxDelay = cfg.Delay
	rc.MaxAttempts = cfg.MaxAttempts
	return rc
}

func breakerConfig(cfg config.Breaker) *limiter.CircuitBreakerConfig {
	failures := cfg.Failures
	return &limiter.CircuitBreakerConfig{
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	}
}
