package reconciliation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/internal/checkout"
	"github.com/angelmondragon/craftstore-backend/internal/handoff"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/payments"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
)

// BeginPaymentInput identifies the order to pay and the tab paying for it.
// Items, when given, must match the order's priced snapshot.
type BeginPaymentInput struct {
	OrderID           uuid.UUID
	BrowsingSessionID string
	Items             []orders.LineItem
}

// PaymentRedirect is where the browser goes next.
type PaymentRedirect struct {
	OrderID     uuid.UUID `json:"order_id"`
	RedirectURL string    `json:"redirect_url"`
	SessionRef  string    `json:"-"`
}

// BeginPayment moves OrderCreated (or Resolved-Failed) -> AwaitingPayment. The
// session ref is stamped on the order and the handoff is written before the
// redirect is returned; if either write fails the new session is expired and
// the order stays payable.
func (c *Coordinator) BeginPayment(ctx context.Context, input BeginPaymentInput) (*PaymentRedirect, error) {
	owner, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	scope := handoff.Scope{OwnerID: owner, BrowsingSessionID: strings.TrimSpace(input.BrowsingSessionID)}
	if scope.BrowsingSessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "browsing session id required")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"user_id":          owner,
		"order_id":         input.OrderID.String(),
		"browsing_session": scope.BrowsingSessionID,
	})

	if !c.initiator.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeProcessorUnavailable, "payment processor not configured")
	}

	order, err := c.ownedOrder(ctx, owner, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := matchItems(order, input.Items); err != nil {
		return nil, err
	}

	previous, err := c.preparePayable(ctx, scope, order)
	if err != nil {
		return nil, err
	}

	// one key per payment attempt, shared by its retries
	attemptKey := fmt.Sprintf("checkout:%s:%s", order.ID, uuid.NewString())
	var session *checkout.Session
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		opened, err := c.initiator.Open(ctx, checkout.Request{
			OrderID:        order.ID,
			CustomerEmail:  order.CustomerEmail,
			Currency:       order.Currency,
			Items:          checkoutItems(order),
			IdempotencyKey: attemptKey,
		})
		if err != nil {
			return err
		}
		session = opened
		return nil
	})
	if err != nil {
		c.incSession("failed")
		c.logg.Error(ctx, "checkout session not opened", err)
		return nil, err
	}
	ctx = c.logg.WithField(ctx, "session_ref", session.ExternalSessionRef)

	err = c.retry.Do(ctx, func(ctx context.Context) error {
		return c.ledger.AttachSession(ctx, order.ID, previous, session.ExternalSessionRef)
	})
	if err != nil {
		c.abandonSession(ctx, session.ExternalSessionRef)
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeSessionCreationFailed, err, "record checkout session")
	}

	err = c.retry.Do(ctx, func(ctx context.Context) error {
		return c.handoffs.Put(ctx, scope, order.ID)
	})
	if err != nil {
		// the stamped ref now points at an expired session; the next attempt supersedes it
		c.abandonSession(ctx, session.ExternalSessionRef)
		return nil, pkgerrors.Wrap(pkgerrors.CodeSessionCreationFailed, err, "persist pending handoff")
	}

	c.incSession("opened")
	c.logg.Info(ctx, "checkout session opened")
	return &PaymentRedirect{
		OrderID:     order.ID,
		RedirectURL: session.RedirectURL,
		SessionRef:  session.ExternalSessionRef,
	}, nil
}

// preparePayable makes sure the order can take a new session and returns the
// session ref it currently carries.
func (c *Coordinator) preparePayable(ctx context.Context, scope handoff.Scope, order *models.Order) (string, error) {
	switch order.PaymentStatus {
	case enums.PaymentStatusPaid:
		return "", alreadyPaid(order.ID)
	case enums.PaymentStatusFailed:
		var reopened bool
		err := c.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			reopened, err = c.ledger.Reopen(ctx, order.ID)
			return err
		})
		if err != nil {
			return "", err
		}
		if !reopened {
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while reopening").
				WithDetails(map[string]any{"order_id": order.ID.String()})
		}
		c.logg.Info(ctx, "failed order reopened for retry")
		return "", nil
	}

	previous := order.SessionRef()
	if previous == "" {
		return "", nil
	}

	// an earlier session may have been paid in another tab or by a slow redirect
	var outcome payments.Outcome
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = c.verifier.Verify(ctx, previous, order.ID)
		return err
	})
	if err != nil {
		return "", err
	}
	if !outcome.Completed() && !outcome.Terminal {
		if late, paid := c.expireBestEffort(ctx, order.ID, previous); paid {
			outcome = late
		}
	}
	if outcome.Completed() {
		if _, err := c.settle(ctx, order.ID, enums.PaymentStatusPaid, orders.Resolution{
			SessionRef:       previous,
			Source:           enums.ResolutionSourceRetry,
			ExternalIdentity: outcome.ExternalIdentity,
		}); err != nil {
			return "", err
		}
		c.commitCart(ctx, order.OwnerID)
		c.dropHandoff(ctx, scope)
		return "", alreadyPaid(order.ID)
	}
	return previous, nil
}

// abandonSession expires a session that never reached the browser.
func (c *Coordinator) abandonSession(ctx context.Context, sessionRef string) {
	c.incSession("abandoned")
	if err := c.initiator.Expire(ctx, sessionRef); err != nil {
		c.logg.Error(ctx, "failed to expire abandoned checkout session", err)
	}
}

func matchItems(order *models.Order, items []orders.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) != len(order.Items) {
		return pkgerrors.New(pkgerrors.CodeValidation, "items do not match order")
	}
	for i, item := range items {
		recorded := order.Items[i]
		if item.ProductID != recorded.ProductID || item.Quantity != recorded.Quantity || item.UnitPriceCents != recorded.UnitPriceCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "items do not match order").
				WithDetails(map[string]any{"position": i, "product_id": item.ProductID})
		}
	}
	return nil
}

func checkoutItems(order *models.Order) []checkout.LineItem {
	items := make([]checkout.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, checkout.LineItem{
			ProductID:      item.ProductID,
			Name:           item.ProductName,
			Description:    item.ProductDescription,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return items
}

func alreadyPaid(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s is already paid", orderID)).
		WithDetails(map[string]any{"order_id": orderID.String(), "payment_status": enums.PaymentStatusPaid})
}
