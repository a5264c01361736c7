package reconciliation

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/payments"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
)

// ReconcileResult reports what a background reconciliation did.
type ReconcileResult struct {
	OrderID       uuid.UUID
	PaymentStatus enums.PaymentStatus
	Applied       bool
	Skipped       string
}

// ReconcileSession re-verifies a session outside of any browser context
// (processor webhooks, the pending sweep). Only processor-terminal verdicts
// change the order. The tab handoff is left for the browser return to clear.
func (c *Coordinator) ReconcileSession(ctx context.Context, sessionRef string, source enums.ResolutionSource) (ReconcileResult, error) {
	sessionRef = strings.TrimSpace(sessionRef)
	if sessionRef == "" {
		return ReconcileResult{}, pkgerrors.New(pkgerrors.CodeValidation, "session ref required")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{"session_ref": sessionRef, "source": source.String()})

	order, err := c.ledger.GetBySessionRef(ctx, sessionRef)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			// superseded or foreign session
			return ReconcileResult{Skipped: "unknown session"}, nil
		}
		return ReconcileResult{}, err
	}
	ctx = c.logg.WithOrderID(ctx, order.ID.String())
	result := ReconcileResult{OrderID: order.ID, PaymentStatus: order.PaymentStatus}
	if order.PaymentStatus.IsTerminal() {
		result.Skipped = "already settled"
		return result, nil
	}

	var outcome payments.Outcome
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = c.verifier.Verify(ctx, sessionRef, order.ID)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	var target enums.PaymentStatus
	switch {
	case outcome.Completed():
		target = enums.PaymentStatusPaid
	case outcome.Terminal:
		target = enums.PaymentStatusFailed
	default:
		result.Skipped = "session not settled: " + outcome.Reason
		return result, nil
	}

	change, err := c.settle(ctx, order.ID, target, orders.Resolution{
		SessionRef:       sessionRef,
		Source:           source,
		Reason:           outcome.Reason,
		ExternalIdentity: outcome.ExternalIdentity,
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	if change.Current == enums.PaymentStatusPaid {
		c.commitCart(ctx, order.OwnerID)
	}
	if change.Applied {
		c.logg.Info(ctx, "payment reconciled as "+change.Current.String())
	}
	result.PaymentStatus = change.Current
	result.Applied = change.Applied
	return result, nil
}
