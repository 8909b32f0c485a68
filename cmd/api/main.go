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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/auth"
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
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	// Stores
	var (
		pool    *pgxpool.Pool
		states  repository.StateStore
		events  repository.EventStore
		offsets repository.OffsetStore
	)
	if cfg.StoreBackend == "postgres" {
		pool, err = infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to postgres")

		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		states = repository.NewPostgresStateStore(pool)
		events = repository.NewPostgresEventStore(pool)
		offsets = repository.NewPostgresOffsetStore(pool)
	} else {
		logger.Warn("using in-memory stores; state is lost on restart")
		states = repository.NewMemoryStateStore()
		events = repository.NewMemoryEventStore()
		offsets = repository.NewMemoryOffsetStore()
	}

	log := eventlog.New(events, logger)

	// Actor runtime
	nodes := make([]actor.Node, 0)
	for id, addr := range cfg.NodeAddrs() {
		nodes = append(nodes, actor.Node{ID: id, Addr: addr})
	}
	system, err := actor.NewSystem(actor.Config{
		NodeID:          cfg.NodeID,
		Nodes:           nodes,
		Store:           states,
		Transport:       actor.NewHTTPTransport(cfg.InvokeTimeout),
		Logger:          logger,
		Metrics:         actor.NewMetrics(prometheus.DefaultRegisterer),
		DeactivateAfter: cfg.EntityIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("build actor runtime: %w", err)
	}
	if err := registerKinds(system, log); err != nil {
		return fmt.Errorf("register entity kinds: %w", err)
	}
	system.Start()

	// Broker side: forwarder publishes the event stream, the consumer
	// turns marketSettled messages into settlement sagas.
	if cfg.KafkaEnabled {
		producer := infra.NewKafkaProducer(cfg.KafkaBrokers, logger)
		defer producer.Close()

		forwarder := eventlog.NewForwarder(eventlog.ForwarderConfig{
			Store:       events,
			Offsets:     offsets,
			Publisher:   producer,
			Logger:      logger,
			Metrics:     eventlog.NewForwarderMetrics(prometheus.DefaultRegisterer),
			TopicPrefix: cfg.TopicPrefix,
			Interval:    cfg.ForwarderInterval,
			BatchSize:   cfg.ForwarderBatchSize,
		})
		go forwarder.Run(ctx)

		consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, settlement.TriggerTopic(cfg.TopicPrefix),
			cfg.SettlementGroupID, logger)
		defer consumer.Close()
		go settlement.NewConsumer(consumer, system, logger).Run(ctx)
	}

	// JWT
	adminExpiry, err := time.ParseDuration(cfg.JWTAdminExpiry)
	if err != nil {
		return fmt.Errorf("parse admin JWT expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, adminExpiry)

	// Handlers
	walletHandler := handler.NewWalletHandler(wallet.NewClient(system))
	betHandler := handler.NewBetHandler(bet.NewClient(system), bet.NewUserIndexClient(system))
	oddsHandler := handler.NewOddsHandler(market.NewClient(system))
	eventHandler := handler.NewEventHandler(sportevent.NewClient(system), sportevent.NewRegistryClient(system))
	settlementHandler := handler.NewSettlementHandler(
		settlement.NewClient(system),
		settlement.NewCoordinator(system, cfg.SettlementConcurrency, logger),
	)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)

	// Health and metrics (no auth, no JSON envelope)
	r.Get("/health", handler.HealthHandler(pool))
	r.Handle("/metrics", promhttp.Handler())

	// Cross-node entity dispatch (cluster-internal)
	r.Post(actor.InvokePath, system.InvokeHTTPHandler())

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)

		r.Route("/api", func(r chi.Router) {
			r.Route("/wallet/{userId}", func(r chi.Router) {
				r.Post("/deposit", walletHandler.Deposit)
				r.Post("/withdraw", walletHandler.Withdraw)
				r.Get("/balance", walletHandler.GetBalance)
				r.Get("/transactions", walletHandler.GetTransactions)
				r.Get("/ledger", walletHandler.GetLedger)
			})

			r.Route("/bets", func(r chi.Router) {
				r.Post("/", betHandler.PlaceBet)
				r.Get("/{betId}", betHandler.GetBet)
				r.Get("/{betId}/history", betHandler.GetBetHistory)
				r.Post("/{betId}/void", betHandler.VoidBet)
				r.Post("/{betId}/cashout", betHandler.CashOut)
			})

			r.Get("/users/{userId}/bets", betHandler.GetUserBets)

			r.Route("/odds/{marketId}", func(r chi.Router) {
				r.Get("/", oddsHandler.GetOdds)
				r.Put("/", oddsHandler.UpdateOdds)
				r.Post("/suspend", oddsHandler.Suspend)
				r.Post("/resume", oddsHandler.Resume)
				r.Post("/lock", oddsHandler.Lock)
				r.Post("/unlock", oddsHandler.Unlock)
				r.Get("/volatility", oddsHandler.GetVolatility)
			})

			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.ListEvents)
				r.Get("/{eventId}", eventHandler.GetEvent)

				// Lifecycle mutations are an operator surface.
				r.Group(func(r chi.Router) {
					r.Use(auth.Authenticate(jwtMgr))
					r.Use(auth.RequireRole(auth.WriteRoles()...))

					r.Post("/", eventHandler.CreateEvent)
					r.Put("/{eventId}/status", eventHandler.UpdateEventStatus)
					r.Post("/{eventId}/markets", eventHandler.AddMarket)
					r.Put("/{eventId}/markets/{marketId}/status", eventHandler.UpdateMarketStatus)
					r.Post("/{eventId}/markets/{marketId}/result", eventHandler.SetMarketResult)
				})
			})

			r.Route("/admin/settlements", func(r chi.Router) {
				r.Use(auth.Authenticate(jwtMgr))

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(auth.WriteRoles()...))
					r.Post("/", settlementHandler.Settle)
					r.Post("/batch", settlementHandler.SettleBatch)
				})
				r.Get("/{sagaId}", settlementHandler.GetSaga)
			})
		})
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr, "node_id", cfg.NodeID)
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

	// Shutdown with timeout: stop accepting HTTP, then drain entities
	// so in-flight mailboxes finish and state is flushed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := system.Drain(shutdownCtx); err != nil {
		return fmt.Errorf("drain actor runtime: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// registerKinds declares every entity kind hosted by this node.
func registerKinds(system *actor.System, log *eventlog.Log) error {
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
			return err
		}
	}
	return nil
}
