package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tripops-backend/internal/orders"
	"github.com/angelmondragon/tripops-backend/internal/trips"
	"github.com/angelmondragon/tripops-backend/internal/wallets"
	"github.com/angelmondragon/tripops-backend/pkg/config"
	"github.com/angelmondragon/tripops-backend/pkg/db"
	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	"github.com/angelmondragon/tripops-backend/pkg/env"
	"github.com/angelmondragon/tripops-backend/pkg/instance"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/metrics"
	"github.com/angelmondragon/tripops-backend/pkg/migrate"
	"github.com/angelmondragon/tripops-backend/pkg/outbox"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cascade-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cascade-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cascade-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	gormStore, err := docstore.NewGormStore(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create document store", err)
		os.Exit(1)
	}
	store := docstore.WithTimeout(gormStore, cfg.Store.OperationTimeout)

	coordinatorMetrics := metrics.NewCoordinatorMetrics(prometheus.DefaultRegisterer)

	coordinator, err := orders.NewCoordinator(orders.NewRepository(store), logg, coordinatorMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create order coordinator", err)
		os.Exit(1)
	}
	walletService, err := wallets.NewService(wallets.NewRepository(store), logg, coordinatorMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	events := outbox.NewRepository(store)
	tripService, err := trips.NewService(trips.ServiceParams{
		Repository: trips.NewRepository(store),
		Orders:     coordinator,
		Wallets:    walletService,
		Outbox:     outbox.NewService(logg),
		Events:     events,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create trip service", err)
		os.Exit(1)
	}

	handlers := outbox.NewHandlerRegistry()
	handlers.Register(enums.EventTripTypeChanged, tripService.HandleTripTypeChanged)

	relay, err := outbox.NewRelay(outbox.RelayParams{
		Logger:       logg,
		Repository:   events,
		Registry:     handlers,
		Metrics:      coordinatorMetrics,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		PollInterval: cfg.Outbox.PollInterval(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox relay", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger:       logg,
		DB:           dbClient,
		Relay:        relay,
		MetricsAddr:  env.Get("TRIPOPS_METRICS_ADDR", ""),
		MetricsRoute: promhttp.Handler(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cascade worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cascade worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cascade worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cascade worker shutting down gracefully")
}
