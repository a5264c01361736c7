// Package reconciliation drives a checkout from order creation through the
// processor redirect and back to a settled payment status.
package reconciliation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/internal/cart"
	"github.com/angelmondragon/craftstore-backend/internal/checkout"
	"github.com/angelmondragon/craftstore-backend/internal/handoff"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/payments"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
	"github.com/angelmondragon/craftstore-backend/pkg/retry"
)

// IdentityProvider answers who the caller is.
type IdentityProvider interface {
	CallerID(ctx context.Context) (string, error)
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func(ctx context.Context) (string, error)

func (f IdentityFunc) CallerID(ctx context.Context) (string, error) { return f(ctx) }

// CartOpener opens a buyer's cart.
type CartOpener interface {
	Open(ctx context.Context, profileID string) *cart.Store
}

// HandoffStore persists the tab-scoped pending handoff.
type HandoffStore interface {
	Put(ctx context.Context, scope handoff.Scope, orderID uuid.UUID) error
	Get(ctx context.Context, scope handoff.Scope) (handoff.Handoff, bool, error)
	Delete(ctx context.Context, scope handoff.Scope) error
}

// SessionInitiator opens and closes processor sessions.
type SessionInitiator interface {
	Configured() bool
	Open(ctx context.Context, req checkout.Request) (*checkout.Session, error)
	Expire(ctx context.Context, sessionRef string) error
}

// OutcomeVerifier resolves a session's canonical outcome.
type OutcomeVerifier interface {
	Verify(ctx context.Context, sessionRef string, orderID uuid.UUID) (payments.Outcome, error)
}

// Metrics receives reconciliation counters. A nil Metrics is allowed.
type Metrics interface {
	IncOutcome(source, outcome string)
	IncSession(result string)
}

// Deps wires the coordinator's collaborators.
type Deps struct {
	Identity  IdentityProvider
	Ledger    orders.Ledger
	Carts     CartOpener
	Handoffs  HandoffStore
	Initiator SessionInitiator
	Verifier  OutcomeVerifier
	Metrics   Metrics
	Logger    *logger.Logger
	Retry     retry.Policy
}

// Coordinator is the single writer of order payment status.
type Coordinator struct {
	identity  IdentityProvider
	ledger    orders.Ledger
	carts     CartOpener
	handoffs  HandoffStore
	initiator SessionInitiator
	verifier  OutcomeVerifier
	metrics   Metrics
	logg      *logger.Logger
	retry     retry.Policy
}

func NewCoordinator(deps Deps) (*Coordinator, error) {
	switch {
	case deps.Identity == nil:
		return nil, fmt.Errorf("identity provider required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("orders ledger required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart opener required")
	case deps.Handoffs == nil:
		return nil, fmt.Errorf("handoff store required")
	case deps.Initiator == nil:
		return nil, fmt.Errorf("session initiator required")
	case deps.Verifier == nil:
		return nil, fmt.Errorf("outcome verifier required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	policy := deps.Retry
	if policy.Attempts < 1 {
		policy = retry.Once
	}
	return &Coordinator{
		identity:  deps.Identity,
		ledger:    deps.Ledger,
		carts:     deps.Carts,
		handoffs:  deps.Handoffs,
		initiator: deps.Initiator,
		verifier:  deps.Verifier,
		metrics:   deps.Metrics,
		logg:      deps.Logger,
		retry:     policy,
	}, nil
}

// ProcessorConfigured reports whether payment sessions can be opened.
func (c *Coordinator) ProcessorConfigured() bool {
	return c.initiator.Configured()
}

// StateOf derives the checkout state of an order. A pending order with a
// session stays awaiting payment even after its tab handoff is gone, since a
// webhook or the sweep can still settle it.
func StateOf(order *models.Order) enums.CheckoutState {
	if order == nil {
		return enums.CheckoutStateBuilding
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusPaid:
		return enums.CheckoutStateResolvedPaid
	case enums.PaymentStatusFailed:
		return enums.CheckoutStateResolvedFailed
	}
	if order.SessionRef() == "" {
		return enums.CheckoutStateOrderCreated
	}
	return enums.CheckoutStateAwaitingPayment
}

// Order returns an order owned by the caller. Foreign orders read as not found.
func (c *Coordinator) Order(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	owner, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	return c.ownedOrder(ctx, owner, orderID)
}

// PendingOrders lists the caller's pending orders for a customer email.
func (c *Coordinator) PendingOrders(ctx context.Context, email string) ([]models.Order, error) {
	owner, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	return c.ledger.ListPendingForCustomer(ctx, owner, email)
}

// Attempts lists the payment attempts of a caller-owned order.
func (c *Coordinator) Attempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error) {
	if _, err := c.Order(ctx, orderID); err != nil {
		return nil, err
	}
	return c.ledger.Attempts(ctx, orderID)
}

func (c *Coordinator) caller(ctx context.Context) (string, error) {
	id, err := c.identity.CallerID(ctx)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity required")
	}
	return id, nil
}

func (c *Coordinator) ownedOrder(ctx context.Context, owner string, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		found, err := c.ledger.Get(ctx, orderID)
		if err != nil {
			return err
		}
		order = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	if order.OwnerID != owner {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// settle applies a guarded status change with retries.
func (c *Coordinator) settle(ctx context.Context, orderID uuid.UUID, to enums.PaymentStatus, res orders.Resolution) (orders.StatusChange, error) {
	var change orders.StatusChange
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		change, err = c.ledger.SetPaymentStatus(ctx, orderID, to, res)
		return err
	})
	if err != nil {
		return orders.StatusChange{}, err
	}
	c.incOutcome(res.Source.String(), change, res.Ambiguous)
	return change, nil
}

// commitCart empties the owner's cart once their order is paid.
func (c *Coordinator) commitCart(ctx context.Context, ownerID string) {
	c.carts.Open(ctx, ownerID).Clear(ctx)
}

func (c *Coordinator) dropHandoff(ctx context.Context, scope handoff.Scope) {
	if err := c.handoffs.Delete(ctx, scope); err != nil {
		c.logg.Error(ctx, "failed to clear pending handoff", err)
	}
}

// expireBestEffort closes an open session and reports whether the processor
// now says it was actually paid.
func (c *Coordinator) expireBestEffort(ctx context.Context, orderID uuid.UUID, sessionRef string) (payments.Outcome, bool) {
	err := c.initiator.Expire(ctx, sessionRef)
	if err == nil {
		return payments.Outcome{}, false
	}
	c.logg.Warn(c.logg.WithField(ctx, "session_ref", sessionRef), "could not expire checkout session: "+err.Error())
	outcome, err := c.verifier.Verify(ctx, sessionRef, orderID)
	if err != nil {
		return payments.Outcome{}, false
	}
	return outcome, outcome.Completed()
}

func (c *Coordinator) incOutcome(source string, change orders.StatusChange, ambiguous bool) {
	if c.metrics == nil {
		return
	}
	result := change.Current.String()
	switch {
	case !change.Applied:
		result = "noop"
	case ambiguous && change.Current == enums.PaymentStatusFailed:
		result = "failed_ambiguous"
	}
	c.metrics.IncOutcome(source, result)
}

func (c *Coordinator) incSession(result string) {
	if c.metrics != nil {
		c.metrics.IncSession(result)
	}
}
