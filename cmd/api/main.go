package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/api/routes"
	"github.com/servigo-app/servigo-backend/internal/ambassadors"
	"github.com/servigo-app/servigo-backend/internal/disputes"
	"github.com/servigo-app/servigo-backend/internal/engagements"
	"github.com/servigo-app/servigo-backend/internal/ledger"
	"github.com/servigo-app/servigo-backend/internal/loyalty"
	"github.com/servigo-app/servigo-backend/internal/memberships"
	"github.com/servigo-app/servigo-backend/internal/notifications"
	"github.com/servigo-app/servigo-backend/internal/payments"
	"github.com/servigo-app/servigo-backend/internal/policy"
	"github.com/servigo-app/servigo-backend/pkg/config"
	"github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/migrate"
	"github.com/servigo-app/servigo-backend/pkg/outbox"
	"github.com/servigo-app/servigo-backend/pkg/redis"
)

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

	cfg.Service.Kind = "api"

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

	engagementService, err := engagements.NewService(engagements.Deps{
		Repo:        engagements.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Outbox:      outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
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

	notificationService, err := notifications.NewService(dbClient.DB(), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	loyaltyService, err := loyalty.NewService(dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient.DB(),
			DBPinger:      dbClient,
			Redis:         redisClient,
			Engagements:   engagementService,
			Notifications: notificationService,
			Loyalty:       loyaltyService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
