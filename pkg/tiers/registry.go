package tiers

import (
	"context"

	"github.com/stationauth/stationauth/pkg/accounts"
)

// TierSource provides read access to the tier registry. The SQL store
// and its cached variant both satisfy it.
type TierSource interface {
	ListTiers(ctx context.Context) ([]*Tier, error)
	GetFallbackTier(ctx context.Context) (*Tier, error)
}

// Registry evaluates tier availability against a tier source.
type Registry struct {
	source TierSource
}

// NewRegistry creates a registry over the given source.
func NewRegistry(source TierSource) *Registry {
	return &Registry{source: source}
}

// AvailableTo returns the tiers available to the given character, ordered
// by priority descending. A nil character evaluates only the public tiers.
func (r *Registry) AvailableTo(ctx context.Context, ch *accounts.Character) ([]*Tier, error) {
	all, err := r.source.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	var available []*Tier
	for _, tier := range all {
		if tier.AvailableTo(ch) {
			available = append(available, tier)
		}
	}

	return available, nil
}

// Fallback returns the reserved fallback tier.
func (r *Registry) Fallback(ctx context.Context) (*Tier, error) {
	return r.source.GetFallbackTier(ctx)
}
