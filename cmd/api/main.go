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

	"github.com/angelmondragon/craftstore-backend/api/middleware"
	"github.com/angelmondragon/craftstore-backend/api/routes"
	"github.com/angelmondragon/craftstore-backend/internal/cart"
	"github.com/angelmondragon/craftstore-backend/internal/checkout"
	"github.com/angelmondragon/craftstore-backend/internal/handoff"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/payments"
	"github.com/angelmondragon/craftstore-backend/internal/reconciliation"
	stripewebhook "github.com/angelmondragon/craftstore-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/craftstore-backend/pkg/config"
	"github.com/angelmondragon/craftstore-backend/pkg/db"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
	"github.com/angelmondragon/craftstore-backend/pkg/metrics"
	"github.com/angelmondragon/craftstore-backend/pkg/migrate"
	"github.com/angelmondragon/craftstore-backend/pkg/redis"
	"github.com/angelmondragon/craftstore-backend/pkg/retry"
	"github.com/angelmondragon/craftstore-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	webhookClaimScope = "stripe_webhook"
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

	// an unconfigured processor still serves carts and orders; payment routes answer 503
	var stripeClient *stripe.Client
	if cfg.Stripe.Configured() {
		stripeClient, err = stripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap stripe", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "stripe credentials missing, card payments disabled")
	}

	carts, err := cart.NewRepository(redisClient, redisClient.CartKey, cfg.Checkout.CartTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart repository", err)
		os.Exit(1)
	}
	handoffs, err := handoff.NewStore(redisClient, redisClient.HandoffKey, cfg.Checkout.HandoffTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create handoff store", err)
		os.Exit(1)
	}
	ledger, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders ledger", err)
		os.Exit(1)
	}

	returnURLs, err := checkout.NewReturnURLs(cfg.App.PublicBaseURL, cfg.Checkout.SuccessPath, cfg.Checkout.CancelPath)
	if err != nil {
		logg.Error(context.Background(), "invalid checkout return urls", err)
		os.Exit(1)
	}
	initiator, err := checkout.NewInitiator(stripeClient, returnURLs)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout initiator", err)
		os.Exit(1)
	}

	reconMetrics := metrics.NewReconciliationMetrics(prometheus.DefaultRegisterer)
	coordinator, err := reconciliation.NewCoordinator(reconciliation.Deps{
		Identity:  reconciliation.IdentityFunc(middleware.CallerID),
		Ledger:    ledger,
		Carts:     carts,
		Handoffs:  handoffs,
		Initiator: initiator,
		Verifier:  payments.NewVerifier(stripeClient, reconMetrics),
		Metrics:   reconMetrics,
		Logger:    logg,
		Retry:     retry.Policy{Attempts: cfg.Checkout.RetryAttempts, BaseDelay: cfg.Checkout.RetryBaseDelay},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation coordinator", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(coordinator, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Redis.IdempotencyTTL, webhookClaimScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:            dbClient,
			Cache:         redisClient,
			Carts:         carts,
			Checkout:      coordinator,
			Webhooks:      webhookService,
			WebhookSecret: stripeClient,
			WebhookGuard:  webhookGuard,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
