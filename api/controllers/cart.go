package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/craftstore-backend/api/middleware"
	"github.com/angelmondragon/craftstore-backend/api/responses"
	"github.com/angelmondragon/craftstore-backend/api/validators"
	"github.com/angelmondragon/craftstore-backend/internal/cart"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
)

// CartOpener loads a buyer's cart.
type CartOpener interface {
	Open(ctx context.Context, profileID string) *cart.Store
}

type addCartItemRequest struct {
	ProductID          string `json:"product_id" validate:"required,max=128"`
	ProductName        string `json:"product_name" validate:"required,max=256"`
	ProductDescription string `json:"product_description,omitempty" validate:"omitempty,max=2048"`
	UnitPriceCents     int64  `json:"unit_price_cents" validate:"gte=0"`
	Quantity           int    `json:"quantity,omitempty"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartLineView struct {
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name"`
	ProductDescription string `json:"product_description,omitempty"`
	Quantity           int    `json:"quantity"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
	LineTotalCents     int64  `json:"line_total_cents"`
	LineTotalDisplay   string `json:"line_total_display"`
}

type cartView struct {
	Items           []cartLineView `json:"items"`
	ItemCount       int            `json:"item_count"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	SubtotalDisplay string         `json:"subtotal_display"`
}

func newCartView(store *cart.Store) cartView {
	lines := store.Lines()
	view := cartView{Items: make([]cartLineView, 0, len(lines))}
	for _, line := range lines {
		total := line.LineTotal()
		view.Items = append(view.Items, cartLineView{
			ProductID:          line.ProductID,
			ProductName:        line.ProductName,
			ProductDescription: line.ProductDescription,
			Quantity:           line.Quantity,
			UnitPriceCents:     line.UnitPriceCents,
			LineTotalCents:     total,
			LineTotalDisplay:   enums.CurrencyUSD.Display(total),
		})
		view.ItemCount += line.Quantity
	}
	view.SubtotalCents = store.Subtotal()
	view.SubtotalDisplay = enums.CurrencyUSD.Display(view.SubtotalCents)
	return view
}

func openCallerCart(w http.ResponseWriter, r *http.Request, carts CartOpener, logg *logger.Logger) (*cart.Store, bool) {
	owner, err := middleware.CallerID(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return carts.Open(r.Context(), owner), true
}

func CartFetch(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := openCallerCart(w, r, carts, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, newCartView(store))
	}
}

// CartAddItem merges a product into the cart; a missing quantity adds one.
func CartAddItem(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, ok := openCallerCart(w, r, carts, logg)
		if !ok {
			return
		}
		store.Add(r.Context(), cart.Product{
			ID:             payload.ProductID,
			Name:           payload.ProductName,
			Description:    payload.ProductDescription,
			UnitPriceCents: payload.UnitPriceCents,
		}, payload.Quantity)
		responses.WriteSuccess(w, newCartView(store))
	}
}

// CartUpdateItem sets a line's quantity; zero or less removes the line.
func CartUpdateItem(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathString(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, ok := openCallerCart(w, r, carts, logg)
		if !ok {
			return
		}
		store.UpdateQuantity(r.Context(), productID, payload.Quantity)
		responses.WriteSuccess(w, newCartView(store))
	}
}

func CartRemoveItem(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathString(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, ok := openCallerCart(w, r, carts, logg)
		if !ok {
			return
		}
		store.Remove(r.Context(), productID)
		responses.WriteSuccess(w, newCartView(store))
	}
}

func CartClear(carts CartOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := openCallerCart(w, r, carts, logg)
		if !ok {
			return
		}
		store.Clear(r.Context())
		responses.WriteSuccess(w, newCartView(store))
	}
}
