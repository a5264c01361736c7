// Package cart holds a buyer's selected line items. Every mutation is written
// through to a key-value store; write failures are logged and the in-memory
// lines stay authoritative for the rest of the request.
package cart

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/craftstore-backend/pkg/kv"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
	"github.com/angelmondragon/craftstore-backend/pkg/money"
)

// Product is the catalog snapshot a buyer adds to the cart.
type Product struct {
	ID             string
	Name           string
	Description    string
	UnitPriceCents int64
}

// Line is one cart entry. ProductID is unique within a cart.
type Line struct {
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name"`
	ProductDescription string `json:"product_description,omitempty"`
	Quantity           int    `json:"quantity"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
}

// LineTotal is quantity times the unit price snapshot.
func (l Line) LineTotal() int64 {
	return money.LineTotal(l.UnitPriceCents, l.Quantity)
}

// Store is one profile's cart.
type Store struct {
	mu    sync.Mutex
	key   string
	kv    kv.Store
	ttl   time.Duration
	logg  *logger.Logger
	lines []Line
}

// Add merges qty into the line for product, or appends a new line. A qty below 1 adds one unit.
func (s *Store) Add(ctx context.Context, product Product, qty int) {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return
	}
	if qty < 1 {
		qty = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		s.lines[i].Quantity += qty
	} else {
		s.lines = append(s.lines, Line{
			ProductID:          id,
			ProductName:        product.Name,
			ProductDescription: product.Description,
			Quantity:           qty,
			UnitPriceCents:     product.UnitPriceCents,
		})
	}
	s.persist(ctx)
}

// UpdateQuantity sets the quantity of a line, removing it when qty <= 0.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return
	}
	if qty <= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	} else {
		s.lines[i].Quantity = qty
	}
	s.persist(ctx)
}

func (s *Store) Remove(ctx context.Context, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.persist(ctx)
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	if err := s.kv.Del(ctx, s.key); err != nil && s.logg != nil {
		s.logg.Error(ctx, "cart clear not persisted", err)
	}
}

// Lines returns a copy of the current lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.lines...)
}

func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, line := range s.lines {
		total += line.LineTotal()
	}
	return total
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

func (s *Store) indexOf(productID string) int {
	productID = strings.TrimSpace(productID)
	for i, line := range s.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// persist expects s.mu held.
func (s *Store) persist(ctx context.Context) {
	if len(s.lines) == 0 {
		if err := s.kv.Del(ctx, s.key); err != nil && s.logg != nil {
			s.logg.Error(ctx, "cart write not persisted", err)
		}
		return
	}
	payload, err := json.Marshal(s.lines)
	if err == nil {
		err = s.kv.Set(ctx, s.key, payload, s.ttl)
	}
	if err != nil && s.logg != nil {
		s.logg.Error(ctx, "cart write not persisted", err)
	}
}
