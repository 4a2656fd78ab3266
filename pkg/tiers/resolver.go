package tiers

import (
	"context"

	"github.com/stationauth/stationauth/pkg/accounts"
)

// Resolve picks the single tier to assign from an availability set: the
// numerically highest priority wins. Priorities are unique by
// construction, so no secondary tie-break exists. An empty set resolves
// to the fallback tier.
func Resolve(available []*Tier, fallback *Tier) *Tier {
	if len(available) == 0 {
		return fallback
	}

	best := available[0]
	for _, tier := range available[1:] {
		if tier.Priority > best.Priority {
			best = tier
		}
	}
	return best
}

// CharacterSource provides character lookups for resolution.
type CharacterSource interface {
	GetCharacter(ctx context.Context, characterID int64) (*accounts.Character, error)
}

// OwnershipChecker reports whether an account currently owns a character.
type OwnershipChecker interface {
	IsOwnedBy(ctx context.Context, characterID, accountID int64) (bool, error)
}

// Resolver computes the tier an account should hold. It is read-only and
// side-effect free; the cascade engine is the only writer of assignments.
type Resolver struct {
	registry   *Registry
	characters CharacterSource
	ownerships OwnershipChecker
}

// NewResolver creates a resolver.
func NewResolver(registry *Registry, characters CharacterSource, ownerships OwnershipChecker) *Resolver {
	return &Resolver{
		registry:   registry,
		characters: characters,
		ownerships: ownerships,
	}
}

// ResolveForAccount returns the tier the account should hold right now.
//
// An inactive account always resolves to the fallback tier. An account
// whose primary character is missing, or no longer owned by it, evaluates
// against the public tiers only.
func (r *Resolver) ResolveForAccount(ctx context.Context, account *accounts.Account) (*Tier, error) {
	return r.resolveForAccount(ctx, account, 0)
}

// ResolveForAccountExcluding resolves as if the given tier no longer
// existed. Used when cascading a tier deletion, where the row is still
// present while its holders are reassigned.
func (r *Resolver) ResolveForAccountExcluding(ctx context.Context, account *accounts.Account, excludeTierID int64) (*Tier, error) {
	return r.resolveForAccount(ctx, account, excludeTierID)
}

func (r *Resolver) resolveForAccount(ctx context.Context, account *accounts.Account, excludeTierID int64) (*Tier, error) {
	fallback, err := r.registry.Fallback(ctx)
	if err != nil {
		return nil, err
	}

	if !account.Active {
		return fallback, nil
	}

	ch, err := r.primaryCharacter(ctx, account)
	if err != nil {
		return nil, err
	}

	available, err := r.registry.AvailableTo(ctx, ch)
	if err != nil {
		return nil, err
	}

	if excludeTierID != 0 {
		filtered := available[:0]
		for _, tier := range available {
			if tier.ID != excludeTierID {
				filtered = append(filtered, tier)
			}
		}
		available = filtered
	}

	return Resolve(available, fallback), nil
}

// primaryCharacter returns the account's primary character if it exists
// and is still owned, nil otherwise.
func (r *Resolver) primaryCharacter(ctx context.Context, account *accounts.Account) (*accounts.Character, error) {
	if account.PrimaryCharacterID == nil {
		return nil, nil
	}

	owned, err := r.ownerships.IsOwnedBy(ctx, *account.PrimaryCharacterID, account.ID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, nil
	}

	ch, err := r.characters.GetCharacter(ctx, *account.PrimaryCharacterID)
	if err == accounts.ErrCharacterNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ch, nil
}
