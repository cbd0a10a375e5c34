package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/miradorstack/pipeline-rca/internal/api"
	"github.com/miradorstack/pipeline-rca/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, gRPC and metrics servers plus the Jenkins monitor",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	logger := a.logger
	logger.Info("starting pipeline-rca",
		slog.String("http", cfg.Server.HTTPAddress),
		slog.String("grpc", cfg.Server.GRPCAddress),
		slog.String("version", version),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	hub := api.NewHub(logger, cfg.Server.MaxSSEClients)
	unsubscribe := a.svc.Notifications().Subscribe(hub.Publish)
	defer unsubscribe()

	var limiter *rate.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), max(cfg.Server.RateBurst, 1))
	}

	grpcServer, err := api.NewServer(cfg.Server, api.NewGRPCService(a.svc))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           api.NewHTTPHandler(logger, a.svc, hub, limiter),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", err))
			stop()
		}
	}()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := grpcServer.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	if cfg.Jenkins.BaseURL != "" {
		go func() {
			if err := a.monitor(false).Run(ctx); err != nil {
				logger.Error("jenkins monitor exited", slog.Any("error", err))
			}
		}()
	} else {
		logger.Warn("jenkins.baseURL not set, monitor disabled")
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}
	grpcServer.Shutdown(shutdownCtx)
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}

	logger.Info("pipeline-rca stopped")
	return nil
}
