package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClaimStore is the redis surface the event guard needs.
type ClaimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
}

// EventGuard makes each processor event id run at most once per TTL.
type EventGuard struct {
	store ClaimStore
	ttl   time.Duration
	scope string
}

func NewEventGuard(store ClaimStore, ttl time.Duration, scope string) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("claim store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if strings.TrimSpace(scope) == "" {
		return nil, errors.New("scope is required")
	}
	return &EventGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim marks eventID as being handled. duplicate is true when another delivery got there first.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (duplicate bool, err error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return !set, nil
}

// Release forgets a claim so the processor's redelivery is handled again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
