package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/api/responses"
	"github.com/angelmondragon/craftstore-backend/api/validators"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/reconciliation"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
)

// OrderReader exposes caller-scoped order reads.
type OrderReader interface {
	Order(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Attempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error)
	PendingOrders(ctx context.Context, email string) ([]models.Order, error)
}

// OrderDetail returns one of the caller's orders with its payment attempts.
func OrderDetail(reader OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := reader.Order(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attempts, err := reader.Attempts(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail := orders.NewOrderDetail(order, attempts)
		detail.CheckoutState = reconciliation.StateOf(order)
		responses.WriteSuccess(w, detail)
	}
}

// PendingOrders lists the caller's unpaid orders for ?email=.
func PendingOrders(reader OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, err := validators.RequiredQuery(r, "email")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pending, err := reader.PendingOrders(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]orders.OrderSummary, 0, len(pending))
		for _, order := range pending {
			out = append(out, orders.NewOrderSummary(order))
		}
		responses.WriteSuccess(w, out)
	}
}
