package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tripops-backend/api/controllers"
	"github.com/angelmondragon/tripops-backend/api/routes"
	"github.com/angelmondragon/tripops-backend/internal/drivers"
	"github.com/angelmondragon/tripops-backend/internal/orders"
	"github.com/angelmondragon/tripops-backend/internal/trips"
	"github.com/angelmondragon/tripops-backend/internal/wallets"
	"github.com/angelmondragon/tripops-backend/pkg/config"
	"github.com/angelmondragon/tripops-backend/pkg/db"
	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/instance"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/metrics"
	"github.com/angelmondragon/tripops-backend/pkg/migrate"
	"github.com/angelmondragon/tripops-backend/pkg/outbox"
	"github.com/angelmondragon/tripops-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	readiness := map[string]controllers.Pinger{"db": dbClient}
	params := routes.RouterParams{
		Config:    cfg,
		Logger:    logg,
		Readiness: readiness,
		Gatherer:  prometheus.DefaultGatherer,
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		readiness["redis"] = redisClient
		params.Idempotency = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured, idempotency keys disabled")
	}

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
	driverService, err := drivers.NewService(drivers.NewRepository(store), logg, coordinatorMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create driver service", err)
		os.Exit(1)
	}
	tripService, err := trips.NewService(trips.ServiceParams{
		Repository: trips.NewRepository(store),
		Orders:     coordinator,
		Wallets:    walletService,
		Outbox:     outbox.NewService(logg),
		Events:     outbox.NewRepository(store),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create trip service", err)
		os.Exit(1)
	}
	params.Trips = tripService
	params.Wallets = walletService
	params.Drivers = driverService

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
