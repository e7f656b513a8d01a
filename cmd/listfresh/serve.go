package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/listfresh/listfresh/internal/api"
	"github.com/listfresh/listfresh/internal/config"
	"github.com/listfresh/listfresh/internal/resolver"
	"github.com/listfresh/listfresh/internal/storage"
	"github.com/listfresh/listfresh/internal/telemetry"
	"github.com/listfresh/listfresh/internal/xrpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /api/list-info",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	}
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().String("metrics-addr", ":9090", "Prometheus listen address (empty disables)")
	_ = c.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	_ = c.v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	logger := mustBuildLogger(cfg.LogLevel(), "stdout")
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting listfresh",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("metrics_addr", cfg.Metrics.Addr),
		zap.String("upstream", cfg.Upstream.Service),
		zap.Duration("upstream_timeout", cfg.Upstream.Timeout),
		zap.String("tracing", cfg.Tracing.Exporter),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  "listfresh",
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	client, err := xrpc.NewClient(xrpc.Config{
		Service:   cfg.Upstream.Service,
		Timeout:   cfg.Upstream.Timeout,
		UserAgent: cfg.Upstream.UserAgent,
	}, metrics, logger)
	if err != nil {
		return err
	}

	writer := openEventWriter(cfg.Events, logger)
	defer writer.Close()

	deps := &api.Dependencies{
		Resolver:   resolver.NewResolver(client, metrics, logger),
		Writer:     writer,
		Metrics:    metrics,
		Logger:     logger,
		CORSOrigin: cfg.HTTP.CORSOrigin,
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return telemetry.ServeMetrics(gctx, cfg.Metrics.Addr, registry, logger)
		})
	}

	// Graceful shutdown on signal or on the first server failure.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("listfresh stopped with error", zap.Error(err))
		return err
	}
	logger.Info("listfresh stopped")
	return nil
}

// openEventWriter picks the lookup event sink: ClickHouse, then Postgres, then
// the log. A sink that cannot connect falls through to the next one.
func openEventWriter(cfg config.EventsConfig, logger *zap.Logger) storage.EventWriter {
	if cfg.ClickHouseDSN != "" {
		w, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err == nil {
			logger.Info("clickhouse event writer connected")
			return w
		}
		logger.Warn("clickhouse connection failed, trying next event sink", zap.Error(err))
	}
	if cfg.PostgresDSN != "" {
		w, err := storage.NewPostgresWriter(cfg.PostgresDSN, logger)
		if err == nil {
			logger.Info("postgres event writer connected")
			return w
		}
		logger.Warn("postgres connection failed, falling back to log writer", zap.Error(err))
	}
	logger.Info("using log event writer")
	return storage.NewLogWriter(logger)
}
