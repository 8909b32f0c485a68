// Command forwarder runs the broker forwarder standalone: it drains
// the persisted event stream into Kafka. Deployments that embed the
// forwarder in the api process do not run this binary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/infra"
	"github.com/stakemesh/platform/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("forwarder failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("forwarder requires KAFKA_ENABLED=true")
	}
	if cfg.StoreBackend != "postgres" {
		return fmt.Errorf("forwarder requires STORE_BACKEND=postgres; the memory store is process-local")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, logger)
	defer producer.Close()

	forwarder := eventlog.NewForwarder(eventlog.ForwarderConfig{
		Store:       repository.NewPostgresEventStore(pool),
		Offsets:     repository.NewPostgresOffsetStore(pool),
		Publisher:   producer,
		Logger:      logger,
		Metrics:     eventlog.NewForwarderMetrics(prometheus.DefaultRegisterer),
		TopicPrefix: cfg.TopicPrefix,
		Interval:    cfg.ForwarderInterval,
		BatchSize:   cfg.ForwarderBatchSize,
	})
	forwarder.Run(ctx)
	return nil
}
