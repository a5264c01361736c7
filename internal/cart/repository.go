package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/craftstore-backend/pkg/kv"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
)

// KeyFunc maps a buyer profile to its storage key.
type KeyFunc func(profileID string) string

// Repository opens per-profile carts over a key-value store.
type Repository struct {
	kv   kv.Store
	key  KeyFunc
	ttl  time.Duration
	logg *logger.Logger
}

// NewRepository builds a cart repository. ttl bounds how long an idle cart survives.
func NewRepository(store kv.Store, key KeyFunc, ttl time.Duration, logg *logger.Logger) (*Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if key == nil {
		return nil, fmt.Errorf("cart key func required")
	}
	return &Repository{kv: store, key: key, ttl: ttl, logg: logg}, nil
}

// Open loads the cart for profileID. Unreadable or corrupt data yields an empty cart.
func (r *Repository) Open(ctx context.Context, profileID string) *Store {
	store := &Store{
		key:  r.key(strings.TrimSpace(profileID)),
		kv:   r.kv,
		ttl:  r.ttl,
		logg: r.logg,
	}
	raw, found, err := r.kv.Lookup(ctx, store.key)
	if err != nil {
		if r.logg != nil {
			r.logg.Error(ctx, "cart load failed", err)
		}
		return store
	}
	if !found {
		return store
	}
	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		if r.logg != nil {
			r.logg.Warn(ctx, "discarding unreadable cart payload")
		}
		return store
	}
	store.lines = dedupe(lines)
	return store
}

// dedupe folds repeated product ids and drops non-positive lines.
func dedupe(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	seen := map[string]int{}
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity <= 0 {
			continue
		}
		if i, ok := seen[line.ProductID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		seen[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out
}
