package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
)

// CustomerDetails is the contact and shipping block captured at checkout.
type CustomerDetails struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required"`
	ShippingAddress string `json:"shipping_address" validate:"required"`
}

// Normalize trims surrounding whitespace and lowercases the email.
func (c CustomerDetails) Normalize() CustomerDetails {
	return CustomerDetails{
		Name:            strings.TrimSpace(c.Name),
		Email:           strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:           strings.TrimSpace(c.Phone),
		ShippingAddress: strings.TrimSpace(c.ShippingAddress),
	}
}

// LineItem is one priced line handed to the ledger at order creation.
type LineItem struct {
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name"`
	ProductDescription string `json:"product_description,omitempty"`
	Quantity           int    `json:"quantity"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
}

// CreateOrderInput carries everything needed to persist a new pending order.
type CreateOrderInput struct {
	OwnerID    string
	Customer   CustomerDetails
	Items      []LineItem
	TotalCents int64
}

// Resolution describes who reconciled a session and what the processor said.
type Resolution struct {
	SessionRef       string
	Source           enums.ResolutionSource
	Reason           string
	ExternalIdentity string
	// Ambiguous marks a failure derived from missing or unexpected processor state.
	Ambiguous bool
}

// StatusChange reports the effect of a guarded payment status update.
type StatusChange struct {
	Applied  bool
	Previous enums.PaymentStatus
	Current  enums.PaymentStatus
}

// OrderItemView is the API shape of one order line.
type OrderItemView struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// PaymentAttemptView is the API shape of one checkout session attempt.
type PaymentAttemptView struct {
	SessionRef string     `json:"session_ref"`
	Outcome    string     `json:"outcome"`
	Reason     string     `json:"reason,omitempty"`
	Source     string     `json:"source,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// OrderDetail is returned by the order read endpoints.
type OrderDetail struct {
	ID            uuid.UUID            `json:"id"`
	PaymentStatus enums.PaymentStatus  `json:"payment_status"`
	CheckoutState enums.CheckoutState  `json:"checkout_state,omitempty"`
	TotalCents    int64                `json:"total_cents"`
	TotalDisplay  string               `json:"total_display"`
	Currency      enums.Currency       `json:"currency"`
	Customer      CustomerDetails      `json:"customer"`
	Items         []OrderItemView      `json:"items"`
	Attempts      []PaymentAttemptView `json:"payment_attempts,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
}

// OrderSummary is the compact list shape used for pending order lookups.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	TotalCents    int64               `json:"total_cents"`
	TotalDisplay  string              `json:"total_display"`
	ItemCount     int                 `json:"item_count"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewOrderDetail maps a persisted order and its attempts into the API shape.
func NewOrderDetail(order *models.Order, attempts []models.PaymentAttempt) OrderDetail {
	detail := OrderDetail{
		ID:            order.ID,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
		TotalDisplay:  order.Currency.Display(order.TotalCents),
		Currency:      order.Currency,
		Customer: CustomerDetails{
			Name:            order.CustomerName,
			Email:           order.CustomerEmail,
			Phone:           order.CustomerPhone,
			ShippingAddress: order.ShippingAddress,
		},
		Items:     make([]OrderItemView, 0, len(order.Items)),
		CreatedAt: order.CreatedAt,
		PaidAt:    order.PaidAt,
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, OrderItemView{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	for _, attempt := range attempts {
		view := PaymentAttemptView{
			SessionRef: attempt.SessionRef,
			Outcome:    attempt.Outcome.String(),
			CreatedAt:  attempt.CreatedAt,
			ResolvedAt: attempt.ResolvedAt,
		}
		if attempt.Reason != nil {
			view.Reason = *attempt.Reason
		}
		if attempt.Source != nil {
			view.Source = attempt.Source.String()
		}
		detail.Attempts = append(detail.Attempts, view)
	}
	return detail
}

// NewOrderSummary maps an order into the compact list shape.
func NewOrderSummary(order models.Order) OrderSummary {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return OrderSummary{
		ID:            order.ID,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
		TotalDisplay:  order.Currency.Display(order.TotalCents),
		ItemCount:     count,
		CreatedAt:     order.CreatedAt,
	}
}
