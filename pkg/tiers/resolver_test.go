package tiers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationauth/stationauth/pkg/accounts"
)

type fakeTierSource struct {
	tiers    []*Tier
	fallback *Tier
}

func (f *fakeTierSource) ListTiers(ctx context.Context) ([]*Tier, error) {
	return f.tiers, nil
}

func (f *fakeTierSource) GetFallbackTier(ctx context.Context) (*Tier, error) {
	if f.fallback == nil {
		return nil, ErrTierNotFound
	}
	return f.fallback, nil
}

type fakeCharacterSource map[int64]*accounts.Character

func (f fakeCharacterSource) GetCharacter(ctx context.Context, characterID int64) (*accounts.Character, error) {
	ch, ok := f[characterID]
	if !ok {
		return nil, accounts.ErrCharacterNotFound
	}
	return ch, nil
}

// fakeOwnershipChecker maps character ID to the owning account ID.
type fakeOwnershipChecker map[int64]int64

func (f fakeOwnershipChecker) IsOwnedBy(ctx context.Context, characterID, accountID int64) (bool, error) {
	owner, ok := f[characterID]
	return ok && owner == accountID, nil
}

func TestResolve(t *testing.T) {
	fallback := &Tier{ID: 1, Name: "Guest", Priority: 0, IsPublic: true}
	member := &Tier{ID: 2, Name: "Member", Priority: 50}
	director := &Tier{ID: 3, Name: "Director", Priority: 100}

	t.Run("highest priority wins", func(t *testing.T) {
		got := Resolve([]*Tier{fallback, director, member}, fallback)
		assert.Equal(t, director, got)
	})

	t.Run("order does not matter", func(t *testing.T) {
		a := Resolve([]*Tier{member, director}, fallback)
		b := Resolve([]*Tier{director, member}, fallback)
		assert.Equal(t, a, b)
	})

	t.Run("empty set resolves to fallback", func(t *testing.T) {
		got := Resolve(nil, fallback)
		assert.Equal(t, fallback, got)
	})

	t.Run("single candidate", func(t *testing.T) {
		got := Resolve([]*Tier{member}, fallback)
		assert.Equal(t, member, got)
	})
}

func newTestResolver() (*Resolver, *fakeTierSource) {
	allianceID := int64(500)
	source := &fakeTierSource{
		fallback: &Tier{ID: 1, Name: "Guest", Priority: 0, IsPublic: true},
		tiers: []*Tier{
			{ID: 1, Name: "Guest", Priority: 0, IsPublic: true},
			{ID: 2, Name: "Blue", Priority: 10, MemberAlliances: []int64{500}},
			{ID: 3, Name: "Member", Priority: 50, MemberCorporations: []int64{2001}},
			{ID: 4, Name: "Director", Priority: 100, MemberCharacters: []int64{1001}},
		},
	}

	characters := fakeCharacterSource{
		1001: {ID: 1001, Name: "Director Pilot", CorporationID: 2001, AllianceID: &allianceID},
		1002: {ID: 1002, Name: "Line Pilot", CorporationID: 2001},
		1003: {ID: 1003, Name: "Neutral Pilot", CorporationID: 9999},
	}

	ownerships := fakeOwnershipChecker{
		1001: 10,
		1002: 11,
		1003: 12,
	}

	return NewResolver(NewRegistry(source), characters, ownerships), source
}

func primaryID(id int64) *int64 { return &id }

func TestResolverResolveForAccount(t *testing.T) {
	resolver, _ := newTestResolver()
	ctx := context.Background()

	t.Run("inactive account gets fallback", func(t *testing.T) {
		tier, err := resolver.ResolveForAccount(ctx, &accounts.Account{
			ID: 10, Active: false, PrimaryCharacterID: primaryID(1001),
		})
		require.NoError(t, err)
		assert.Equal(t, "Guest", tier.Name)
	})

	t.Run("character membership beats corp membership", func(t *testing.T) {
		tier, err := resolver.ResolveForAccount(ctx, &accounts.Account{
			ID: 10, Active: true, PrimaryCharacterID: primaryID(1001),
		})
		require.NoError(t, err)
		assert.Equal(t, "Director", tier.Name)
	})

	t.Run("corp member resolves to member tier", func(t *testing.T) {
		tier, err := resolver.ResolveForAccount(ctx, &accounts.Account{
			ID: 11, Active: true, PrimaryCharacterID: primaryID(1002),
		})
		require.NoError(t, err)
		assert.Equal(t, "Member", tier.Name)
	})

	t.Run("no primary character resolves against public tiers", func(t *testing.T) {
		tier, err := resolver.ResolveForAccount(ctx, &accounts.Account{
			ID: 12, Active: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "Guest", tier.Name)
	})

	t.Run("unowned primary resolves as if no character", func(t *testing.T) {
		// Account 99 never owned character 1001.
		tier, err := resolver.ResolveForAccount(ctx, &accounts.Account{
			ID: 99, Active: true, PrimaryCharacterID: primaryID(1001),
		})
		require.NoError(t, err)
		assert.Equal(t, "Guest", tier.Name)
	})

	t.Run("missing character row resolves as if no character", func(t *testing.T) {
		ownerships := fakeOwnershipChecker{7777: 13}
		_, source := newTestResolver()
		r := NewResolver(NewRegistry(source), fakeCharacterSource{}, ownerships)

		tier, err := r.ResolveForAccount(ctx, &accounts.Account{
			ID: 13, Active: true, PrimaryCharacterID: primaryID(7777),
		})
		require.NoError(t, err)
		assert.Equal(t, "Guest", tier.Name)
	})

	t.Run("unaffiliated character gets fallback", func(t *testing.T) {
		tier, err := resolver.ResolveForAccount(ctx, &accounts.Account{
			ID: 12, Active: true, PrimaryCharacterID: primaryID(1003),
		})
		require.NoError(t, err)
		assert.Equal(t, "Guest", tier.Name)
	})
}

func TestResolverResolveForAccountExcluding(t *testing.T) {
	resolver, _ := newTestResolver()
	ctx := context.Background()

	account := &accounts.Account{ID: 10, Active: true, PrimaryCharacterID: primaryID(1001)}

	// Excluding the winning tier hands the answer to the runner-up.
	tier, err := resolver.ResolveForAccountExcluding(ctx, account, 4)
	require.NoError(t, err)
	assert.Equal(t, "Member", tier.Name)

	// Excluding an unrelated tier changes nothing.
	tier, err = resolver.ResolveForAccountExcluding(ctx, account, 2)
	require.NoError(t, err)
	assert.Equal(t, "Director", tier.Name)
}

func TestRegistryAvailableTo(t *testing.T) {
	_, source := newTestResolver()
	registry := NewRegistry(source)
	ctx := context.Background()

	t.Run("nil character sees public tiers only", func(t *testing.T) {
		available, err := registry.AvailableTo(ctx, nil)
		require.NoError(t, err)
		require.Len(t, available, 1)
		assert.Equal(t, "Guest", available[0].Name)
	})

	t.Run("affiliated character sees matching tiers", func(t *testing.T) {
		allianceID := int64(500)
		available, err := registry.AvailableTo(ctx, &accounts.Character{
			ID: 1002, CorporationID: 2001, AllianceID: &allianceID,
		})
		require.NoError(t, err)
		assert.Len(t, available, 3)
	})
}
