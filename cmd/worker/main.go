package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/servigo-app/servigo-backend/internal/ambassadors"
	"github.com/servigo-app/servigo-backend/internal/chat"
	"github.com/servigo-app/servigo-backend/internal/dispatcher"
	"github.com/servigo-app/servigo-backend/internal/loyalty"
	"github.com/servigo-app/servigo-backend/internal/notifications"
	"github.com/servigo-app/servigo-backend/internal/policy"
	"github.com/servigo-app/servigo-backend/internal/relationships"
	"github.com/servigo-app/servigo-backend/internal/reminders"
	"github.com/servigo-app/servigo-backend/pkg/config"
	"github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/migrate"
	"github.com/servigo-app/servigo-backend/pkg/outbox/idempotency"
	"github.com/servigo-app/servigo-backend/pkg/pubsub"
	"github.com/servigo-app/servigo-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Outbox.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	commercialPolicy, err := policy.FromConfig(cfg.Policy)
	if err != nil {
		logg.Error(context.Background(), "invalid commercial policy", err)
		os.Exit(1)
	}

	loyaltyService, err := loyalty.NewService(dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty service", err)
		os.Exit(1)
	}
	ambassadorService, err := ambassadors.NewService(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create ambassador service", err)
		os.Exit(1)
	}
	chatService, err := chat.NewService(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create chat service", err)
		os.Exit(1)
	}
	reminderService, err := reminders.NewService(dbClient, commercialPolicy)
	if err != nil {
		logg.Error(context.Background(), "failed to create reminder service", err)
		os.Exit(1)
	}
	relationshipService, err := relationships.NewService(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create relationship service", err)
		os.Exit(1)
	}
	notificationService, err := notifications.NewService(dbClient.DB(), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	router, err := dispatcher.NewRouter(dispatcher.RouterDeps{
		Loyalty:       loyaltyService,
		Commissions:   ambassadorService,
		Chat:          chatService,
		Reminders:     reminderService,
		Relationships: relationshipService,
		Notifications: notificationService,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch router", err)
		os.Exit(1)
	}

	worker, err := dispatcher.NewWorker(pubsubClient.DomainSubscription(), router, manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
	})
	logg.Info(ctx, "starting dispatch worker")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatch worker shutting down gracefully")
}
