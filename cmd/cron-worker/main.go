package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/internal/ambassadors"
	"github.com/servigo-app/servigo-backend/internal/cron"
	"github.com/servigo-app/servigo-backend/internal/disputes"
	"github.com/servigo-app/servigo-backend/internal/engagements"
	"github.com/servigo-app/servigo-backend/internal/ledger"
	"github.com/servigo-app/servigo-backend/internal/memberships"
	"github.com/servigo-app/servigo-backend/internal/payments"
	"github.com/servigo-app/servigo-backend/internal/policy"
	"github.com/servigo-app/servigo-backend/internal/reminders"
	"github.com/servigo-app/servigo-backend/pkg/config"
	"github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/metrics"
	"github.com/servigo-app/servigo-backend/pkg/migrate"
	"github.com/servigo-app/servigo-backend/pkg/outbox"
	"github.com/servigo-app/servigo-backend/pkg/redis"
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

	commercialPolicy, err := policy.FromConfig(cfg.Policy)
	if err != nil {
		logg.Error(context.Background(), "invalid commercial policy", err)
		os.Exit(1)
	}
	calculator, err := ledger.NewCalculator(commercialPolicy)
	if err != nil {
		logg.Error(context.Background(), "failed to build ledger calculator", err)
		os.Exit(1)
	}

	engagementRepo := engagements.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	engagementService, err := engagements.NewService(engagements.Deps{
		Repo:        engagementRepo,
		Tx:          dbClient,
		Outbox:      outboxService,
		Disputes:    disputes.NewRepository(dbClient.DB()),
		Memberships: memberships.NewRepository(dbClient.DB()),
		Referrals:   ambassadors.NewReferrals(),
		Charger:     payments.NewSimulator(decimal.Zero, logg),
		Calculator:  calculator,
		Policy:      commercialPolicy,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create engagement service", err)
		os.Exit(1)
	}

	reminderService, err := reminders.NewService(dbClient, commercialPolicy)
	if err != nil {
		logg.Error(context.Background(), "failed to create reminder service", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	autoRelease, err := cron.NewAutoReleaseJob(cron.AutoReleaseJobParams{
		Logger:      logg,
		Finder:      engagementRepo,
		Engagements: engagementService,
		Policy:      commercialPolicy,
		Metrics:     jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auto-release job", err)
		os.Exit(1)
	}

	fallbackRelease, err := cron.NewFallbackReleaseJob(cron.FallbackReleaseJobParams{
		Logger:      logg,
		Finder:      engagementRepo,
		Engagements: engagementService,
		Metrics:     jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create fallback-release job", err)
		os.Exit(1)
	}

	reminderDispatch, err := cron.NewReminderDispatchJob(cron.ReminderDispatchJobParams{
		Logger:    logg,
		DB:        dbClient.DB(),
		Tx:        dbClient,
		Reminders: reminderService,
		Outbox:    outboxService,
		Metrics:   jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reminder-dispatch job", err)
		os.Exit(1)
	}

	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Tx:         dbClient,
		Repository: outboxRepo,
		Metrics:    jobMetrics,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox-retention job", err)
		os.Exit(1)
	}

	disputeAge, err := cron.NewDisputeAgeJob(cron.DisputeAgeJobParams{
		Logger:  logg,
		Finder:  engagementRepo,
		Metrics: jobMetrics,
		MaxAge:  cfg.Cron.DisputeAgeAlert,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispute-age job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockKey, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(autoRelease, fallbackRelease, reminderDispatch, outboxRetention, disputeAge),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "cron-worker",
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
