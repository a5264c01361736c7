package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

var errNotConfigured = errors.New("stripe client not configured")

// CreateCheckoutSession opens a hosted checkout session. Shipping countries are
// filled from config when the caller leaves them unset.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if !c.Configured() {
		return nil, errNotConfigured
	}
	if params == nil {
		return nil, errors.New("checkout session params required")
	}
	params.Context = ctx
	if params.ShippingAddressCollection == nil && len(c.allowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(c.allowedCountries),
		}
	}
	return c.sessions.New(params)
}

// GetCheckoutSession reads a session's current status. It never mutates processor state.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	if !c.Configured() {
		return nil, errNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return c.sessions.Get(sessionID, params)
}

// ExpireCheckoutSession closes an open session so it can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	if !c.Configured() {
		return errNotConfigured
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := c.sessions.Expire(sessionID, params)
	return err
}

// IsTransient reports whether a Stripe call failed in a way worth retrying:
// transport failures, rate limiting, and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return !errors.Is(err, errNotConfigured)
	}
	if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return true
	}
	return stripeErr.Type == stripe.ErrorTypeAPI
}

// IsNotFound reports whether Stripe has no record of the requested object.
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// IsNotConfigured reports whether the call failed because no credentials were loaded.
func IsNotConfigured(err error) bool {
	return errors.Is(err, errNotConfigured)
}
