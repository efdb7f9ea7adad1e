package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/canaryctl/internal/api"
	"github.com/systmms/canaryctl/internal/config"
	"github.com/systmms/canaryctl/internal/dispatch"
	"github.com/systmms/canaryctl/internal/metricsource"
	"github.com/systmms/canaryctl/internal/notifications"
	"github.com/systmms/canaryctl/internal/rollout"
	"github.com/systmms/canaryctl/internal/router"
	"github.com/systmms/canaryctl/internal/storage"
)

// NewServeCommand creates the serve command
func NewServeCommand(cfg *config.Config) *cobra.Command {
	var listenOverride string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rollout controller and its HTTP API",
		Long: `Start the canary rollout controller. The controller exposes the HTTP
API for starting, inspecting, and cancelling rollouts, plus health and
Prometheus metrics endpoints.`,
		Example: `  # Serve with the default canaryctl.yaml
  canaryctl serve

  # Serve on a different address
  canaryctl serve --listen :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			def := cfg.Definition
			if listenOverride != "" {
				def.Listen = listenOverride
			}
			logger := cfg.Logger

			trafficRouter, err := buildRouter(def)
			if err != nil {
				return fmt.Errorf("failed to configure traffic router: %w", err)
			}
			source, err := buildMetricSource(def, cfg)
			if err != nil {
				return fmt.Errorf("failed to configure metric source: %w", err)
			}

			rollout.InitMetrics()
			notifications.InitMetrics()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			notifier := def.Notifications.BuildManager()
			if notifier != nil {
				notifier.Start(ctx)
				defer notifier.Stop()
			}

			dispatcher := dispatch.New(trafficRouter, notifier, buildDispatchConfig(def), logger)

			dataDir := def.DataDir
			if dataDir == "" {
				dataDir = storage.DefaultDataDir()
			}
			archive, err := storage.NewFileArchive(dataDir, logger)
			if err != nil {
				return fmt.Errorf("failed to open rollout archive: %w", err)
			}

			controller := rollout.New(dispatcher, source, archive, logger)
			server := api.NewServer(controller, archive, logger)

			httpServer := &http.Server{
				Addr:              def.ListenAddr(),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("canaryctl listening on %s (router: %s)", def.ListenAddr(), trafficRouter.Name())
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutting down, waiting for active rollouts")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP shutdown: %v", err)
			}
			controller.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenOverride, "listen", "", "Override the configured listen address")

	return cmd
}

func buildRouter(def *config.Definition) (router.TrafficRouter, error) {
	return router.NewWebhookRouter(router.WebhookConfig{
		BaseURL:   def.Router.URL,
		AuthType:  def.Router.AuthType,
		AuthValue: def.Router.AuthValue,
		Headers:   def.Router.Headers,
		Timeout:   config.ParseDuration(def.Router.Timeout, 10*time.Second),
	})
}

func buildMetricSource(def *config.Definition, cfg *config.Config) (metricsource.MetricSource, error) {
	switch def.MetricSource.Type {
	case "prometheus":
		prom := def.MetricSource.Prometheus
		return metricsource.NewPrometheusSource(metricsource.PrometheusConfig{
			URL:     prom.URL,
			Queries: prom.Queries,
			Timeout: config.ParseDuration(prom.Timeout, 5*time.Second),
		}, cfg.Logger)
	case "sql":
		sqlCfg := def.MetricSource.SQL
		return metricsource.NewSQLSource(metricsource.SQLConfig{
			Driver:  sqlCfg.Driver,
			DSN:     sqlCfg.DSN,
			Query:   sqlCfg.Query,
			Timeout: config.ParseDuration(sqlCfg.Timeout, 5*time.Second),
		})
	default:
		return nil, fmt.Errorf("unknown metric source type: %s", def.MetricSource.Type)
	}
}

func buildDispatchConfig(def *config.Definition) dispatch.Config {
	out := dispatch.DefaultConfig()
	if def.Dispatch == nil {
		return out
	}
	if def.Dispatch.MaxAttempts > 0 {
		out.MaxAttempts = def.Dispatch.MaxAttempts
	}
	out.InitialBackoff = config.ParseDuration(def.Dispatch.InitialBackoff, out.InitialBackoff)
	out.CallTimeout = config.ParseDuration(def.Dispatch.CallTimeout, out.CallTimeout)
	return out
}
