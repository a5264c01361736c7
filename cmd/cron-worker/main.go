package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/craftstore-backend/internal/cart"
	"github.com/angelmondragon/craftstore-backend/internal/checkout"
	"github.com/angelmondragon/craftstore-backend/internal/cron"
	"github.com/angelmondragon/craftstore-backend/internal/handoff"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/payments"
	"github.com/angelmondragon/craftstore-backend/internal/reconciliation"
	"github.com/angelmondragon/craftstore-backend/pkg/config"
	"github.com/angelmondragon/craftstore-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
	"github.com/angelmondragon/craftstore-backend/pkg/metrics"
	"github.com/angelmondragon/craftstore-backend/pkg/migrate"
	"github.com/angelmondragon/craftstore-backend/pkg/redis"
	"github.com/angelmondragon/craftstore-backend/pkg/retry"
	"github.com/angelmondragon/craftstore-backend/pkg/stripe"
)

const lockName = "cron-worker"

// the sweep has no caller; any code path that needs one is a wiring bug
func noCaller(context.Context) (string, error) {
	return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "cron worker has no caller identity")
}

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

	if !cfg.Stripe.Configured() {
		// nothing can be verified without the processor
		logg.Warn(context.Background(), "stripe credentials missing, cron worker idle")
		return
	}
	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	ledger, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders ledger", err)
		os.Exit(1)
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
		Identity:  reconciliation.IdentityFunc(noCaller),
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

	sweep, err := cron.NewPendingPaymentSweepJob(cron.PendingPaymentSweepParams{
		Logger:     logg,
		Orders:     ledger,
		Reconciler: coordinator,
		MinAge:     cfg.Reconciliation.SweepMinAge,
		BatchSize:  cfg.Reconciliation.SweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending payment sweep", err)
		os.Exit(1)
	}

	interval := cfg.Reconciliation.SweepInterval
	// the lock outlives one cycle so a slow sweep is never run twice
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName+":"+cfg.App.Env), interval+time.Minute)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweep),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": lockName,
		"interval":    interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
