package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snow-ghost/adaptmgr/mock"
	"github.com/snow-ghost/adaptmgr/pkg/logging"
)

func main() {
	var (
		addr         string
		scenarioPath string
		logLevel     string
	)

	root := &cobra.Command{
		Use:          "mock-system",
		Short:        "Serve a simulated managed system for the adaptation manager",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logCfg := logging.DefaultConfig()
			logCfg.Level = logLevel
			logger, err := logging.NewLogger(logCfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			scenario := mock.DefaultScenario()
			if scenarioPath != "" {
				if scenario, err = mock.LoadScenario(scenarioPath); err != nil {
					return err
				}
			}

			sys := mock.NewSystem(scenario, logger.GetZap().Named("mock"))
			srv := &http.Server{
				Addr:              addr,
				Handler:           sys.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			logger.GetZap().Info("mock system listening",
				zap.String("addr", addr),
				zap.Int("qrs", len(scenario.QRs)),
				zap.Int("knobs", len(scenario.Knobs)),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	root.Flags().StringVar(&addr, "addr", ":8091", "Listen address")
	root.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario with qrs, knobs and drift")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
