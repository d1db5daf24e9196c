// Package venue holds the catalog of tradable DEX venues. The registry is
// the only owner of Venue values; the finder and evaluator reference venues
// by id.
package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexarb/dexarb/types"
)

// Venue describes one DEX accessible for swaps. Immutable once registered.
type Venue struct {
	ID       string
	Router   common.Address
	Factory  common.Address
	Name     string
	FeeRate  decimal.Decimal // 0 <= fee < 1
	Verified bool
}

// Registry is a concurrency-safe venue catalog. New venues may be added at
// runtime; existing entries are never overwritten unless the registry was
// built with AllowOverwrite.
type Registry struct {
	mu             sync.RWMutex
	venues         map[string]Venue
	allowOverwrite bool
	logger         *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// AllowOverwrite lets Add replace an existing id. Off by default: replacing
// a venue silently changes its fee and router under the feet of any search
// that is holding the id.
func AllowOverwrite() Option {
	return func(r *Registry) { r.allowOverwrite = true }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		venues: make(map[string]Venue),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a venue. Returns ErrVenueExists for a duplicate id unless
// overwriting is enabled, and ErrConfigInvalid for an out-of-range fee.
func (r *Registry) Add(v Venue) error {
	if v.ID == "" {
		return fmt.Errorf("%w: venue id must not be empty", types.ErrConfigInvalid)
	}
	if v.FeeRate.IsNegative() || v.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: venue %s fee rate %s outside [0,1)", types.ErrConfigInvalid, v.ID, v.FeeRate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.venues[v.ID]; ok && !r.allowOverwrite {
		return fmt.Errorf("%w: %s", types.ErrVenueExists, v.ID)
	}
	r.venues[v.ID] = v

	r.logger.Info("Registered venue",
		zap.String("id", v.ID),
		zap.String("router", v.Router.Hex()),
		zap.String("fee_rate", v.FeeRate.String()),
		zap.Bool("verified", v.Verified))
	return nil
}

// Get looks up a venue by id.
func (r *Registry) Get(id string) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.venues[id]
	if !ok {
		return Venue{}, fmt.Errorf("%w: %s", types.ErrVenueNotFound, id)
	}
	return v, nil
}

// IsVerified reports whether the venue exists and is verified. Unknown ids
// fail closed.
func (r *Registry) IsVerified(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.venues[id]
	return ok && v.Verified
}

// List returns a snapshot of all registered venues. Order is unspecified.
func (r *Registry) List() []Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Venue, 0, len(r.venues))
	for _, v := range r.venues {
		out = append(out, v)
	}
	return out
}

// ListVerified returns the verified venues sorted by id. The fixed ordering
// makes downstream permutation enumeration reproducible.
func (r *Registry) ListVerified() []Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Venue, 0, len(r.venues))
	for _, v := range r.venues {
		if v.Verified {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered venues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.venues)
}
