// Package checkout opens hosted processor sessions for priced orders.
package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/craftstore-backend/pkg/stripe"
)

// sessionIDPlaceholder is substituted by the processor on redirect.
const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// SessionCreator is the processor surface the initiator needs.
type SessionCreator interface {
	Configured() bool
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

// LineItem is one priced line sent to the processor.
type LineItem struct {
	ProductID      string
	Name           string
	Description    string
	Quantity       int
	UnitPriceCents int64
}

// Request describes a session to open for one order.
type Request struct {
	OrderID       uuid.UUID
	CustomerEmail string
	Currency      enums.Currency
	Items         []LineItem
	// IdempotencyKey makes retried creates return the same processor session.
	IdempotencyKey string
}

// Session is the ephemeral processor handle returned to the coordinator.
type Session struct {
	ExternalSessionRef string
	RedirectURL        string
	LineItems          []LineItem
}

// ReturnURLs are the two browser landing points.
type ReturnURLs struct {
	Success string
	Cancel  string
}

// NewReturnURLs joins the public base URL with the success and cancel paths and
// appends the processor's session id placeholder.
func NewReturnURLs(baseURL, successPath, cancelPath string) (ReturnURLs, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return ReturnURLs{}, fmt.Errorf("public base url %q must be absolute", baseURL)
	}
	build := func(path string) string {
		// the placeholder braces must survive verbatim, so the query is not encoded
		return base.String() + path + "?session_id=" + sessionIDPlaceholder
	}
	return ReturnURLs{Success: build(successPath), Cancel: build(cancelPath)}, nil
}

type Initiator struct {
	processor SessionCreator
	urls      ReturnURLs
}

func NewInitiator(processor SessionCreator, urls ReturnURLs) (*Initiator, error) {
	if urls.Success == "" || urls.Cancel == "" {
		return nil, fmt.Errorf("return urls required")
	}
	return &Initiator{processor: processor, urls: urls}, nil
}

// Configured reports whether a processor is wired with credentials.
func (i *Initiator) Configured() bool {
	return i != nil && i.processor != nil && i.processor.Configured()
}

// Open asks the processor for a hosted session covering req.Items.
func (i *Initiator) Open(ctx context.Context, req Request) (*Session, error) {
	if !i.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeProcessorUnavailable, "payment processor not configured")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session requires line items")
	}
	currency := req.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(i.urls.Success),
		CancelURL:          stripe.String(i.urls.Cancel),
		ClientReferenceID:  stripe.String(req.OrderID.String()),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": req.OrderID.String()},
		},
	}
	params.AddMetadata("order_id", req.OrderID.String())
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid line item %s", item.ProductID))
		}
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(item.Name),
			Metadata: map[string]string{"product_id": item.ProductID},
		}
		if item.Description != "" {
			product.Description = stripe.String(item.Description)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency.String()),
				UnitAmount:  stripe.Int64(item.UnitPriceCents),
				ProductData: product,
			},
		})
	}
	params.AddMetadata("line_count", strconv.Itoa(len(req.Items)))

	session, err := i.processor.CreateCheckoutSession(ctx, params)
	if err != nil {
		if pkgstripe.IsNotConfigured(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProcessorUnavailable, err, "payment processor not configured")
		}
		if !pkgstripe.IsTransient(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProcessorRejected, err, "create checkout session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeSessionCreationFailed, err, "create checkout session")
	}
	if session == nil || session.ID == "" || session.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeSessionCreationFailed, "processor returned an incomplete session")
	}
	return &Session{
		ExternalSessionRef: session.ID,
		RedirectURL:        session.URL,
		LineItems:          append([]LineItem(nil), req.Items...),
	}, nil
}

// Expire closes a session so it can no longer be paid.
func (i *Initiator) Expire(ctx context.Context, sessionRef string) error {
	if !i.Configured() {
		return pkgerrors.New(pkgerrors.CodeProcessorUnavailable, "payment processor not configured")
	}
	if err := i.processor.ExpireCheckoutSession(ctx, sessionRef); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire checkout session")
	}
	return nil
}
