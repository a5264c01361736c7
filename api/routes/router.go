package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/craftstore-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/craftstore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/craftstore-backend/api/middleware"
	"github.com/angelmondragon/craftstore-backend/pkg/config"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/craftstore-backend/pkg/redis"
)

// Cache is the redis surface the HTTP layer needs: idempotency records,
// per-caller rate windows and a readiness ping.
type Cache interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Checkout is everything the buyer-facing routes drive.
type Checkout interface {
	controllers.CheckoutFlow
	controllers.OrderReader
}

type Deps struct {
	DB       controllers.Pinger
	Cache    Cache
	Carts    controllers.CartOpener
	Checkout Checkout

	Webhooks      webhookcontrollers.EventHandler
	WebhookSecret webhookcontrollers.SigningSecretSource
	WebhookGuard  webhookcontrollers.EventGuard

	// Metrics serves /metrics; nil uses the default prometheus registry.
	Metrics http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessChecks(deps)))
	})
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.Webhooks, deps.WebhookSecret, deps.WebhookGuard, logg))
	})

	var idempotent, paymentLimit func(http.Handler) http.Handler
	if deps.Cache != nil {
		idempotent = middleware.Idempotency(deps.Cache, cfg.Redis.IdempotencyTTL, logg)
		paymentLimit = middleware.CallerRateLimit("payment", cfg.Checkout.PaymentRateLimit, cfg.Checkout.PaymentRateWindow, deps.Cache, logg)
	} else {
		idempotent = passthrough
		paymentLimit = passthrough
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Carts, logg))
			r.Delete("/", controllers.CartClear(deps.Carts, logg))
			r.Post("/items", controllers.CartAddItem(deps.Carts, logg))
			r.Put("/items/{productId}", controllers.CartUpdateItem(deps.Carts, logg))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(deps.Carts, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/processor", controllers.CheckoutProcessor(deps.Checkout))
			r.With(idempotent).Post("/orders", controllers.CheckoutPlaceOrder(deps.Checkout, logg))
			r.With(paymentLimit, idempotent).Post("/orders/{orderId}/payment", controllers.CheckoutBeginPayment(deps.Checkout, logg))
			r.Post("/returns", controllers.CheckoutResolveReturn(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/pending", controllers.PendingOrders(deps.Checkout, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.Checkout, logg))
		})
	})

	return r
}

func readinessChecks(deps Deps) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Cache != nil {
		checks["redis"] = deps.Cache
	}
	return checks
}

func passthrough(next http.Handler) http.Handler { return next }
