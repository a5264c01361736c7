package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/craftstore-backend/api/responses"
	stripewebhook "github.com/angelmondragon/craftstore-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
)

const maxWebhookBytes = 64 << 10

type EventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// EventGuard claims an event id so a redelivery is acknowledged without reprocessing.
type EventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type SigningSecretSource interface {
	SigningSecret() string
}

// StripeWebhook verifies the signature, claims the event id once, and hands
// checkout session events to reconciliation. A failed handler releases the
// claim and answers non-2xx so the processor redelivers.
func StripeWebhook(handler EventHandler, secrets SigningSecretSource, guard EventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		secret := ""
		if secrets != nil {
			secret = strings.TrimSpace(secrets.SigningSecret())
		}
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeProcessorUnavailable, "webhook signing secret not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}
		if !stripewebhook.Handles(event.Type) {
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		duplicate, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim event"))
			return
		}
		if duplicate {
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		if err := handler.HandleEvent(ctx, &event); err != nil {
			if relErr := guard.Release(ctx, event.ID); relErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event claim", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
