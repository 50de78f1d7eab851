package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tripops-backend/internal/cron"
	"github.com/angelmondragon/tripops-backend/internal/drivers"
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

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var lock cron.Lock = cron.NoopLock{}
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
		redisLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
		lock = redisLock
	} else {
		logg.Warn(context.Background(), "redis not configured, cron runs without a distributed lock")
	}

	coordinatorMetrics := metrics.NewCoordinatorMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	jobs := []cron.Job{}

	if cfg.Cron.LeaveEnabled {
		loc, err := cfg.Cron.Location()
		if err != nil {
			logg.Error(context.Background(), "invalid leave timezone", err)
			os.Exit(1)
		}
		driverService, err := drivers.NewService(drivers.NewRepository(store), logg, coordinatorMetrics)
		if err != nil {
			logg.Error(context.Background(), "failed to create driver service", err)
			os.Exit(1)
		}
		leaveJob, err := cron.NewLeaveAccrualJob(cron.LeaveAccrualJobParams{
			Logger:   logg,
			Drivers:  driverService,
			Location: loc,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create leave accrual job", err)
			os.Exit(1)
		}
		jobs = append(jobs, leaveJob)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(store),
		Retention:  cfg.Cron.OutboxRetention,
		BatchSize:  cfg.Outbox.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	jobs = append(jobs, retentionJob)

	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron registry", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
