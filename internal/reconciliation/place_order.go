package reconciliation

import (
	"context"

	"github.com/angelmondragon/craftstore-backend/internal/cart"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/money"
)

// PlaceOrderInput is the buyer's submission. Items default to the caller's cart.
type PlaceOrderInput struct {
	Customer orders.CustomerDetails
	Items    []orders.LineItem
}

// PlaceOrder moves Building -> OrderCreated. Validation failures are returned
// immediately; transient ledger failures are retried under the policy.
func (c *Coordinator) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	owner, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	ctx = c.logg.WithUserID(ctx, owner)

	items := input.Items
	if len(items) == 0 {
		items = linesFromCart(c.carts.Open(ctx, owner))
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	var total int64
	for _, item := range items {
		total += money.LineTotal(item.UnitPriceCents, item.Quantity)
	}

	var order *models.Order
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		created, err := c.ledger.Create(ctx, orders.CreateOrderInput{
			OwnerID:    owner,
			Customer:   input.Customer,
			Items:      items,
			TotalCents: total,
		})
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logg.Info(c.logg.WithOrderID(ctx, order.ID.String()), "order placed")
	return order, nil
}

func linesFromCart(store *cart.Store) []orders.LineItem {
	lines := store.Lines()
	items := make([]orders.LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, orders.LineItem{
			ProductID:          line.ProductID,
			ProductName:        line.ProductName,
			ProductDescription: line.ProductDescription,
			Quantity:           line.Quantity,
			UnitPriceCents:     line.UnitPriceCents,
		})
	}
	return items
}
