// Package handoff tracks which order a browsing session is paying for while the
// buyer is away at the processor.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/kv"
)

// KeyFunc maps (owner, browsing session) to a storage key.
type KeyFunc func(ownerID, browsingSessionID string) string

// Handoff links one browsing session to the order it redirected away for.
type Handoff struct {
	OrderID   uuid.UUID `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Scope identifies a single tab of a single buyer.
type Scope struct {
	OwnerID           string
	BrowsingSessionID string
}

func (s Scope) validate() error {
	if strings.TrimSpace(s.OwnerID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "handoff owner required")
	}
	if strings.TrimSpace(s.BrowsingSessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "browsing session id required")
	}
	return nil
}

type Store struct {
	kv  kv.Store
	key KeyFunc
	ttl time.Duration
	now func() time.Time
}

func NewStore(store kv.Store, key KeyFunc, ttl time.Duration) (*Store, error) {
	if store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if key == nil {
		return nil, fmt.Errorf("handoff key func required")
	}
	return &Store{kv: store, key: key, ttl: ttl, now: time.Now}, nil
}

// Put records orderID as the tab's pending payment, replacing any earlier handoff.
func (s *Store) Put(ctx context.Context, scope Scope, orderID uuid.UUID) error {
	if err := scope.validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(Handoff{OrderID: orderID, CreatedAt: s.now().UTC()})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode handoff")
	}
	if err := s.kv.Set(ctx, s.keyFor(scope), payload, s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write handoff")
	}
	return nil
}

// Get returns the tab's handoff. found is false when none exists or the stored value is unreadable.
func (s *Store) Get(ctx context.Context, scope Scope) (Handoff, bool, error) {
	if err := scope.validate(); err != nil {
		return Handoff{}, false, err
	}
	raw, found, err := s.kv.Lookup(ctx, s.keyFor(scope))
	if err != nil {
		return Handoff{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read handoff")
	}
	if !found {
		return Handoff{}, false, nil
	}
	var h Handoff
	if err := json.Unmarshal([]byte(raw), &h); err != nil || h.OrderID == uuid.Nil {
		return Handoff{}, false, nil
	}
	return h, true, nil
}

func (s *Store) Delete(ctx context.Context, scope Scope) error {
	if err := scope.validate(); err != nil {
		return err
	}
	if err := s.kv.Del(ctx, s.keyFor(scope)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete handoff")
	}
	return nil
}

func (s *Store) keyFor(scope Scope) string {
	return s.key(strings.TrimSpace(scope.OwnerID), strings.TrimSpace(scope.BrowsingSessionID))
}
