package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/craftstore-backend/api/middleware"
	"github.com/angelmondragon/craftstore-backend/api/responses"
	"github.com/angelmondragon/craftstore-backend/api/validators"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/reconciliation"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
)

// CheckoutFlow is the slice of the reconciliation coordinator the checkout routes drive.
type CheckoutFlow interface {
	ProcessorConfigured() bool
	PlaceOrder(ctx context.Context, input reconciliation.PlaceOrderInput) (*models.Order, error)
	BeginPayment(ctx context.Context, input reconciliation.BeginPaymentInput) (*reconciliation.PaymentRedirect, error)
	ResolveReturn(ctx context.Context, input reconciliation.ReturnInput) (reconciliation.ReturnOutcome, error)
}

type orderItemRequest struct {
	ProductID          string `json:"product_id" validate:"required,max=128"`
	ProductName        string `json:"product_name" validate:"required,max=256"`
	ProductDescription string `json:"product_description,omitempty" validate:"omitempty,max=2048"`
	Quantity           int    `json:"quantity" validate:"min=1"`
	UnitPriceCents     int64  `json:"unit_price_cents" validate:"gte=0"`
}

type placeOrderRequest struct {
	Customer orders.CustomerDetails `json:"customer"`
	Items    []orderItemRequest     `json:"items,omitempty" validate:"omitempty,dive"`
}

type beginPaymentRequest struct {
	Items []orderItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
}

type resolveReturnRequest struct {
	Entry     string `json:"entry" validate:"required"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=255"`
}

func toLineItems(items []orderItemRequest) []orders.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]orders.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, orders.LineItem{
			ProductID:          strings.TrimSpace(item.ProductID),
			ProductName:        strings.TrimSpace(item.ProductName),
			ProductDescription: strings.TrimSpace(item.ProductDescription),
			Quantity:           item.Quantity,
			UnitPriceCents:     item.UnitPriceCents,
		})
	}
	return out
}

func browsingSession(r *http.Request) (string, error) {
	tab := middleware.BrowsingSessionFromContext(r.Context())
	if tab == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, middleware.BrowsingSessionHeader+" header is required")
	}
	return tab, nil
}

// CheckoutProcessor reports whether card payments can be taken right now.
func CheckoutProcessor(flow CheckoutFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]bool{"configured": flow.ProcessorConfigured()})
	}
}

// CheckoutPlaceOrder persists a pending order from the submitted items or, when
// none are given, from the caller's cart.
func CheckoutPlaceOrder(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := flow.PlaceOrder(r.Context(), reconciliation.PlaceOrderInput{
			Customer: payload.Customer,
			Items:    toLineItems(payload.Items),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail := orders.NewOrderDetail(order, nil)
		detail.CheckoutState = reconciliation.StateOf(order)
		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

// CheckoutBeginPayment opens a processor session for the order and returns the redirect.
func CheckoutBeginPayment(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tab, err := browsingSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload beginPaymentRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		redirect, err := flow.BeginPayment(ctx, reconciliation.BeginPaymentInput{
			OrderID:           orderID,
			BrowsingSessionID: tab,
			Items:             toLineItems(payload.Items),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, redirect)
	}
}

// CheckoutResolveReturn settles a browser landing from the processor's hosted page.
func CheckoutResolveReturn(flow CheckoutFlow, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tab, err := browsingSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload resolveReturnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := enums.ParseReturnEntry(payload.Entry)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry").
				WithDetails(map[string]string{"entry": "must be success or failure"}))
			return
		}

		outcome, err := flow.ResolveReturn(r.Context(), reconciliation.ReturnInput{
			Entry:             entry,
			BrowsingSessionID: tab,
			SessionID:         strings.TrimSpace(payload.SessionID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if outcome.Reason != "" && logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"return_kind":   string(outcome.Kind),
				"return_reason": outcome.Reason,
			}), "checkout return resolved")
		}
		responses.WriteSuccess(w, outcome)
	}
}
