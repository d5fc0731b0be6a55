package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dkoroteev/genbot-backend/api/routes"
	"github.com/dkoroteev/genbot-backend/internal/billing"
	"github.com/dkoroteev/genbot-backend/internal/cart"
	"github.com/dkoroteev/genbot-backend/internal/ledger"
	"github.com/dkoroteev/genbot-backend/internal/packs"
	"github.com/dkoroteev/genbot-backend/internal/requests"
	"github.com/dkoroteev/genbot-backend/internal/subscriptions"
	"github.com/dkoroteev/genbot-backend/internal/users"
	"github.com/dkoroteev/genbot-backend/internal/webhooks/payments"
	"github.com/dkoroteev/genbot-backend/pkg/config"
	"github.com/dkoroteev/genbot-backend/pkg/db"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/migrate"
	"github.com/dkoroteev/genbot-backend/pkg/outbox"
	"github.com/dkoroteev/genbot-backend/pkg/redis"
	"github.com/dkoroteev/genbot-backend/pkg/yookassa"
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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
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

	gateway, err := yookassa.NewClient(context.Background(), cfg.Payments.YooKassa, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create yookassa client", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	requestsRepo := requests.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo:       billingRepo,
		UsersRepo:         usersRepo,
		Outbox:            outboxService,
		MandateRevoker:    gateway,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	packsService, err := packs.NewService(packs.ServiceParams{
		BillingRepo:       billingRepo,
		UsersRepo:         usersRepo,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create packs service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Users:  usersRepo,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	requestsService, err := requests.NewService(requests.ServiceParams{
		Repo:              requestsRepo,
		UsersRepo:         usersRepo,
		Ledger:            ledgerService,
		Fanout:            redisClient,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create requests service", err)
		os.Exit(1)
	}

	chargeGuard, err := payments.NewIdempotencyGuard(redisClient, cfg.Payments.IdempotencyTTL, "payments")
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	chargeService, err := payments.NewService(payments.ServiceParams{
		BillingRepo:       billingRepo,
		CartRepo:          cartRepo,
		Subscriptions:     subscriptionsService,
		Packs:             packsService,
		Guard:             chargeGuard,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		PaymentsConfig:    cfg.Payments,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
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
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, chargeService, requestsService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
