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

	"example.com/progression/internal/api"
	"example.com/progression/internal/auth"
	"example.com/progression/internal/bootstrap"
	"example.com/progression/internal/config"
	"example.com/progression/internal/outbox"
	"example.com/progression/internal/platform/logging"
	"example.com/progression/internal/scheduler"
	httptransport "example.com/progression/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("progression api stopped", slog.Any("error", err))
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

	var dispatcher *outbox.Dispatcher
	if store.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(store.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.With(slog.String("component", "outbox"))))
		go dispatcher.Start(ctx)
	} else {
		// Without postgres there is no separate scheduler binary to rotate challenges.
		sched, err := scheduler.New(scheduler.Config{RotationInterval: cfg.ChallengeRotationPeriod},
			service, service.Rules().Today, nil, logger.With(slog.String("component", "scheduler")))
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { _ = sched.Shutdown() }()
	}

	handler := api.NewHandler(service, logger)
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:     logger,
		CORSOrigin: cfg.CORSOrigin,
		Ready:      store.Ping,
		Wrap:       authMiddleware.Wrap,
	}, handler.RegisterRoutes)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("progression api listening", slog.String("address", cfg.HTTPAddress), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
	return nil
}
