// Package stripewebhook routes checkout session notifications into reconciliation.
// Event payloads only name the session; the verdict always comes from a fresh lookup.
package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/craftstore-backend/internal/reconciliation"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
)

// Reconciler settles a session outside of a browser return.
type Reconciler interface {
	ReconcileSession(ctx context.Context, sessionRef string, source enums.ResolutionSource) (reconciliation.ReconcileResult, error)
}

type Service struct {
	reconciler Reconciler
	logg       *logger.Logger
}

func NewService(reconciler Reconciler, logg *logger.Logger) (*Service, error) {
	if reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{reconciler: reconciler, logg: logg}, nil
}

// Handles reports whether the event type is routed to reconciliation.
func Handles(eventType stripe.EventType) bool {
	switch eventType {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		return true
	}
	return false
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	if !Handles(event.Type) {
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if session.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})
	result, err := s.reconciler.ReconcileSession(ctx, session.ID, enums.ResolutionSourceWebhook)
	if err != nil {
		return err
	}
	if result.Skipped != "" {
		s.logg.Info(ctx, fmt.Sprintf("stripe event %s skipped: %s", event.ID, result.Skipped))
	}
	return nil
}
