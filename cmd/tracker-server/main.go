// Package main is the entry point for the refuse tracker server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/auth"
	"github.com/Brandonkhumalo/refuse-tracker/internal/config"
	"github.com/Brandonkhumalo/refuse-tracker/internal/dispatch"
	"github.com/Brandonkhumalo/refuse-tracker/internal/gateway"
	"github.com/Brandonkhumalo/refuse-tracker/internal/ingest"
	"github.com/Brandonkhumalo/refuse-tracker/internal/notify"
	"github.com/Brandonkhumalo/refuse-tracker/internal/registry"
	"github.com/Brandonkhumalo/refuse-tracker/internal/store"
	"github.com/Brandonkhumalo/refuse-tracker/internal/telemetry"
	"github.com/Brandonkhumalo/refuse-tracker/pkg/healthcheck"
)

const healthTopic = "refuse/health"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting refuse tracker server", zap.String("addr", cfg.Server.Addr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backing stores.
	pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pg.Close()

	queue, err := dispatch.NewRedisQueue(ctx, cfg.Redis.URL, cfg.Redis.QueueKey, logger)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() { _ = queue.Close() }()

	// Health probes.
	health := healthcheck.NewEngine(logger)
	health.Register(healthcheck.NewDatabaseChecker(pg.Pool()))
	health.Register(healthcheck.NewRedisChecker(queue.Client()))

	// Optional MQTT mirror.
	var mirror gateway.Mirror
	if cfg.MQTT.BrokerURL != "" {
		mqttClient := telemetry.NewClient(cfg.MQTT, logger)
		if err := mqttClient.Connect(); err != nil {
			logger.Warn("MQTT broker unavailable, mirror disabled until reconnect", zap.Error(err))
		}
		defer mqttClient.Disconnect()

		mirror = telemetry.NewBridge(mqttClient, logger)
		health.Register(healthcheck.NewBrokerChecker(mqttClient))

		reporter := healthcheck.NewReporter(health, healthTopic, func(topic string, payload []byte) error {
			return mqttClient.Publish(topic, 0, false, payload)
		}, logger)
		go reporter.Run(ctx, 30*time.Second)
	}

	// Alert delivery. Without SMTP settings alerts are logged only.
	var notifier notify.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notify.NewMailer(cfg.SMTP, logger)
	} else {
		logger.Warn("SMTP not configured, proximity alerts will only be logged")
		notifier = notify.NewLogNotifier(logger)
	}

	dispatcher := dispatch.NewDispatcher(
		queue, pg, pg, notifier,
		cfg.Dispatch.Workers, cfg.Dispatch.MaxAttempts, cfg.Dispatch.AlertThresholdKm,
		logger,
	)
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Alert dispatcher exited", zap.Error(err))
		}
	}()

	// Connection fan-out and websocket endpoints.
	reg := registry.New(logger)
	validator := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Leeway, pg, logger)
	ingestor := ingest.NewService(pg, pg, logger)
	gw := gateway.New(reg, validator, ingestor, pg, queue, mirror, cfg.Gateway, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	gw.RegisterRoutes(router)
	router.GET("/healthz", healthcheck.GinHandler(health))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("HTTP server failed", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	// Stop accepting new connections, then stop the workers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("Refuse tracker server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	switch level {
	case "debug":
		return zap.NewDevelopment()
	default:
		cfg := zap.NewProductionConfig()
		if parsed, err := zap.ParseAtomicLevel(level); err == nil {
			cfg.Level = parsed
		}
		return cfg.Build()
	}
}
