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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/progression/internal/bootstrap"
	"example.com/progression/internal/config"
	"example.com/progression/internal/outbox"
	"example.com/progression/internal/platform/logging"
	"example.com/progression/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.ServiceName+"-scheduler", cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("scheduler stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := bootstrap.Service(cfg, store, logger)
	if err != nil {
		return err
	}

	var dlq scheduler.DLQProcessor
	if store.Pool != nil {
		dlq = outbox.NewDLQManager(store.Pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)
	}

	sched, err := scheduler.New(scheduler.Config{
		RotationInterval: cfg.ChallengeRotationPeriod,
		DLQInterval:      cfg.DLQPollInterval,
		DLQBatchSize:     cfg.DLQBatchSize,
	}, service, service.Rules().Today, dlq, logger)
	if err != nil {
		return err
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("scheduler metrics listening", slog.String("address", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	sched.Start()
	logger.Info("scheduler started",
		slog.Duration("rotation_interval", cfg.ChallengeRotationPeriod),
		slog.Duration("dlq_interval", cfg.DLQPollInterval),
		slog.Int("dlq_max_retries", cfg.DLQMaxRetries),
	)

	<-ctx.Done()
	logger.Info("scheduler shutdown requested")

	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown error", slog.Any("error", err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return metricsSrv.Shutdown(shutdownCtx)
}
