package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/winfrey-Git/customer-portal/internal/config"
	"github.com/winfrey-Git/customer-portal/internal/messaging"
	"github.com/winfrey-Git/customer-portal/internal/registrations"
	"github.com/winfrey-Git/customer-portal/internal/telemetry"
	"github.com/winfrey-Git/customer-portal/internal/worker"
)

const serviceName = "registration-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Log, os.Stdout).With("service", serviceName)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.App.Version, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.SamplingRatio)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	db, err := telemetry.OpenDB("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	consumer := messaging.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.CustomerCreatedTopic, cfg.Kafka.ConsumerGroup)
	defer func() { _ = consumer.Close() }()

	handler := worker.NewRegistrationHandler(registrations.NewRepository(db), logger)

	logger.Info("starting registration worker",
		"brokers", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.CustomerCreatedTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return nil
		}
		return fmt.Errorf("consume: %w", err)
	}
	return nil
}
