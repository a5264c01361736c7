package reconciliation

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/internal/handoff"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/payments"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
)

// ReturnKind discriminates the outcome handed to the UI.
type ReturnKind string

const (
	// ReturnResolved carries the order's settled (or current) status.
	ReturnResolved ReturnKind = "resolved"
	// ReturnPending means verification could not finish; the handoff is kept so a reload retries.
	ReturnPending ReturnKind = "pending"
	// ReturnUnresolvable means no order can be tied to this landing; no status is asserted.
	ReturnUnresolvable ReturnKind = "unresolvable"
)

// ReturnInput describes one browser landing from the processor.
type ReturnInput struct {
	Entry             enums.ReturnEntry
	BrowsingSessionID string
	// SessionID is the processor's session id from the return URL. It is a hint.
	SessionID string
}

// ReturnOutcome is the discriminated result of ResolveReturn.
type ReturnOutcome struct {
	Kind          ReturnKind          `json:"kind"`
	OrderID       *uuid.UUID          `json:"order_id,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"payment_status,omitempty"`
	Retryable     bool                `json:"retryable,omitempty"`
	Next          string              `json:"next,omitempty"`
	Reason        string              `json:"-"`
}

func resolved(order *models.Order, status enums.PaymentStatus) ReturnOutcome {
	id := order.ID
	return ReturnOutcome{Kind: ReturnResolved, OrderID: &id, PaymentStatus: status, Next: "/order/" + id.String()}
}

func pendingRetry(orderID uuid.UUID, reason string) ReturnOutcome {
	return ReturnOutcome{Kind: ReturnPending, OrderID: &orderID, Retryable: true, Reason: reason}
}

func unresolvable(reason string, retryable bool) ReturnOutcome {
	return ReturnOutcome{Kind: ReturnUnresolvable, Next: "/checkout", Retryable: retryable, Reason: reason}
}

// ResolveReturn moves AwaitingPayment -> Resolving -> Resolved-*. The URL entry
// point never decides the verdict; the processor does. Only caller identity
// failures are returned as errors, everything else is folded into the outcome.
func (c *Coordinator) ResolveReturn(ctx context.Context, input ReturnInput) (ReturnOutcome, error) {
	owner, err := c.caller(ctx)
	if err != nil {
		return ReturnOutcome{}, err
	}
	if !input.Entry.IsValid() {
		return ReturnOutcome{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown return entry")
	}
	scope := handoff.Scope{OwnerID: owner, BrowsingSessionID: strings.TrimSpace(input.BrowsingSessionID)}
	hint := strings.TrimSpace(input.SessionID)
	ctx = c.logg.WithFields(ctx, map[string]any{
		"user_id":          owner,
		"browsing_session": scope.BrowsingSessionID,
		"return_entry":     input.Entry.String(),
	})

	var (
		pending handoff.Handoff
		found   bool
	)
	if scope.BrowsingSessionID != "" {
		err = c.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			pending, found, err = c.handoffs.Get(ctx, scope)
			return err
		})
		if err != nil {
			c.logg.Error(ctx, "pending handoff unreadable", err)
			return unresolvable("handoff store unavailable", true), nil
		}
	}
	if !found {
		return c.resolveWithoutHandoff(ctx, owner, hint), nil
	}

	ctx = c.logg.WithOrderID(ctx, pending.OrderID.String())
	order, err := c.ownedOrder(ctx, owner, pending.OrderID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			c.logg.Warn(ctx, "handoff points at an unknown order")
			c.dropHandoff(ctx, scope)
			return unresolvable("order not found", false), nil
		}
		c.logg.Error(ctx, "order lookup failed during return", err)
		return pendingRetry(pending.OrderID, "ledger unavailable"), nil
	}

	if order.PaymentStatus.IsTerminal() {
		c.dropHandoff(ctx, scope)
		return resolved(order, order.PaymentStatus), nil
	}

	ref := order.SessionRef()
	if hint != "" && ref != "" && hint != ref {
		// Another tab replaced this session; its own return settles the order.
		c.logg.Warn(c.logg.WithField(ctx, "session_ref", hint), "return for a superseded session; current session left untouched")
		c.dropHandoff(ctx, scope)
		return resolved(order, order.PaymentStatus), nil
	}
	if ref == "" {
		return c.resolveUnverifiable(ctx, scope, order, input.Entry, "order has no checkout session"), nil
	}

	var outcome payments.Outcome
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = c.verifier.Verify(ctx, ref, order.ID)
		return err
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeProcessorUnavailable) {
			return c.resolveUnverifiable(ctx, scope, order, input.Entry, "payment processor not configured"), nil
		}
		c.logg.Error(ctx, "payment verification did not complete", err)
		return pendingRetry(order.ID, "verification unavailable"), nil
	}

	if !outcome.Completed() && !outcome.Terminal {
		// stop a still-open session from being paid after we record the failure
		if late, paid := c.expireBestEffort(ctx, order.ID, ref); paid {
			outcome = late
		}
	}
	return c.applyReturnOutcome(ctx, scope, order, ref, outcome), nil
}

func (c *Coordinator) applyReturnOutcome(ctx context.Context, scope handoff.Scope, order *models.Order, ref string, outcome payments.Outcome) ReturnOutcome {
	target := enums.PaymentStatusFailed
	if outcome.Completed() {
		target = enums.PaymentStatusPaid
	}
	if outcome.Ambiguous {
		c.logg.Warn(c.logg.WithField(ctx, "session_status", outcome.SessionStatus), "processor state ambiguous, recording failure: "+outcome.Reason)
	}
	change, err := c.settle(ctx, order.ID, target, orders.Resolution{
		SessionRef:       ref,
		Source:           enums.ResolutionSourceReturn,
		Reason:           outcome.Reason,
		ExternalIdentity: outcome.ExternalIdentity,
		Ambiguous:        outcome.Ambiguous,
	})
	if err != nil {
		c.logg.Error(ctx, "payment status not recorded", err)
		return pendingRetry(order.ID, "ledger unavailable")
	}

	c.dropHandoff(ctx, scope)
	if change.Current == enums.PaymentStatusPaid {
		c.commitCart(ctx, order.OwnerID)
	}
	if change.Applied {
		c.logg.Info(ctx, "payment resolved as "+change.Current.String())
	}
	return resolved(order, change.Current)
}

// resolveUnverifiable handles a landing whose session cannot be checked. The
// failure entry records a best-effort failure; the success entry asserts nothing.
func (c *Coordinator) resolveUnverifiable(ctx context.Context, scope handoff.Scope, order *models.Order, entry enums.ReturnEntry, reason string) ReturnOutcome {
	if entry != enums.ReturnEntryFailure {
		if order.SessionRef() == "" {
			c.dropHandoff(ctx, scope)
			return unresolvable(reason, false)
		}
		return pendingRetry(order.ID, reason)
	}
	change, err := c.settle(ctx, order.ID, enums.PaymentStatusFailed, orders.Resolution{
		SessionRef: order.SessionRef(),
		Source:     enums.ResolutionSourceReturn,
		Reason:     reason,
	})
	if err != nil {
		c.logg.Error(ctx, "best-effort failure not recorded", err)
		change.Current = order.PaymentStatus
	}
	c.dropHandoff(ctx, scope)
	return resolved(order, change.Current)
}

// resolveWithoutHandoff never mutates. A session id from the URL may point the
// buyer at an order that is already settled (paid or failed); anything else is
// unresolvable.
func (c *Coordinator) resolveWithoutHandoff(ctx context.Context, owner, sessionID string) ReturnOutcome {
	if sessionID == "" {
		c.logg.Info(ctx, "return without pending handoff")
		return unresolvable("no pending handoff", false)
	}
	order, err := c.ledger.GetBySessionRef(ctx, sessionID)
	if err != nil || order.OwnerID != owner || order.PaymentStatus == enums.PaymentStatusPending {
		c.logg.Info(ctx, "return without pending handoff")
		return unresolvable("no pending handoff", false)
	}
	return resolved(order, order.PaymentStatus)
}
