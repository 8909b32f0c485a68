// Command settler runs the settlement consumer on a dedicated cluster
// node: it subscribes to the marketSettled topic and drives settlement
// sagas. The node joins the entity ring, so it must be listed in
// CLUSTER_NODES and it serves the cross-node dispatch endpoint like
// any other member.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/bet"
	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/handler"
	"github.com/stakemesh/platform/internal/infra"
	"github.com/stakemesh/platform/internal/market"
	"github.com/stakemesh/platform/internal/repository"
	"github.com/stakemesh/platform/internal/settlement"
	"github.com/stakemesh/platform/internal/sportevent"
	"github.com/stakemesh/platform/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("settler failed", "error", err)
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
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("settler requires KAFKA_ENABLED=true")
	}
	if cfg.StoreBackend != "postgres" {
		return fmt.Errorf("settler requires STORE_BACKEND=postgres; the memory store is process-local")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	log := eventlog.New(repository.NewPostgresEventStore(pool), logger)

	nodes := make([]actor.Node, 0)
	for id, addr := range cfg.NodeAddrs() {
		nodes = append(nodes, actor.Node{ID: id, Addr: addr})
	}
	system, err := actor.NewSystem(actor.Config{
		NodeID:          cfg.NodeID,
		Nodes:           nodes,
		Store:           repository.NewPostgresStateStore(pool),
		Transport:       actor.NewHTTPTransport(cfg.InvokeTimeout),
		Logger:          logger,
		Metrics:         actor.NewMetrics(prometheus.DefaultRegisterer),
		DeactivateAfter: cfg.EntityIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("build actor runtime: %w", err)
	}
	specs := []actor.KindSpec{
		{Kind: wallet.KindWallet, New: wallet.NewFactory(log)},
		{Kind: market.KindOdds, New: market.NewFactory(log)},
		{Kind: bet.KindBet, New: bet.NewFactory(log)},
		{Kind: bet.KindUserIndex, New: bet.NewUserIndexFactory()},
		{Kind: bet.KindMarketIndex, New: bet.NewMarketIndexFactory()},
		{Kind: sportevent.KindEvent, New: sportevent.NewFactory(log)},
		{Kind: sportevent.KindRegistry, New: sportevent.NewRegistryFactory()},
		{Kind: settlement.KindSaga, New: settlement.NewFactory(log), DeactivateAfter: 30 * time.Minute},
	}
	for _, spec := range specs {
		if err := system.Register(spec); err != nil {
			return fmt.Errorf("register entity kinds: %w", err)
		}
	}
	system.Start()

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, settlement.TriggerTopic(cfg.TopicPrefix),
		cfg.SettlementGroupID, logger)
	defer consumer.Close()
	go settlement.NewConsumer(consumer, system, logger).Run(ctx)

	r := chi.NewRouter()
	r.Use(handler.Recovery(logger))
	r.Get("/health", handler.HealthHandler(pool))
	r.Handle("/metrics", promhttp.Handler())
	r.Post(actor.InvokePath, system.InvokeHTTPHandler())

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("settler starting", "addr", addr, "node_id", cfg.NodeID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := system.Drain(shutdownCtx); err != nil {
		return fmt.Errorf("drain actor runtime: %w", err)
	}

	logger.Info("settler stopped gracefully")
	return nil
}
