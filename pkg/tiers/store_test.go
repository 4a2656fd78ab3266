package tiers

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE tiers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			priority INTEGER NOT NULL UNIQUE,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			member_characters TEXT NOT NULL DEFAULT '[]',
			member_corporations TEXT NOT NULL DEFAULT '[]',
			member_alliances TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	require.NoError(t, err)

	return db
}

func seedTiers(t *testing.T, store *Store) (fallback, member *Tier) {
	ctx := context.Background()

	fallback = &Tier{Name: "Guest", Priority: 0, IsPublic: true}
	require.NoError(t, store.CreateTier(ctx, fallback))

	member = &Tier{Name: "Member", Priority: 50, MemberCorporations: []int64{2001}}
	require.NoError(t, store.CreateTier(ctx, member))

	return fallback, member
}

func TestStoreCreateTier(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	tier := &Tier{Name: "Member", Priority: 50, MemberCorporations: []int64{2001}}
	require.NoError(t, store.CreateTier(ctx, tier))
	assert.NotZero(t, tier.ID)

	got, err := store.GetTier(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, "Member", got.Name)
	assert.Equal(t, 50, got.Priority)
	assert.Equal(t, []int64{2001}, got.MemberCorporations)
	assert.Empty(t, got.MemberCharacters)
}

func TestStoreCreateTierDuplicatePriority(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateTier(ctx, &Tier{Name: "Member", Priority: 50}))

	err := store.CreateTier(ctx, &Tier{Name: "Rival", Priority: 50})
	assert.Equal(t, ErrDuplicatePriority, err)
}

func TestStoreCreateTierDuplicateName(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateTier(ctx, &Tier{Name: "Member", Priority: 50}))

	err := store.CreateTier(ctx, &Tier{Name: "Member", Priority: 60})
	assert.Equal(t, ErrDuplicateName, err)
}

func TestStoreCreateTierBelowFallback(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedTiers(t, store)

	err := store.CreateTier(ctx, &Tier{Name: "Basement", Priority: -10, IsPublic: true})
	assert.Equal(t, ErrFallbackProtected, err)

	err = store.CreateTier(ctx, &Tier{Name: "Hidden", Priority: -1})
	assert.Equal(t, ErrFallbackProtected, err)

	fallback, err := store.GetFallbackTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Guest", fallback.Name)
}

func TestStoreGetTierByName(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedTiers(t, store)

	got, err := store.GetTierByName(ctx, "Member")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Priority)

	_, err = store.GetTierByName(ctx, "Nobody")
	assert.Equal(t, ErrTierNotFound, err)
}

func TestStoreGetFallbackTier(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedTiers(t, store)

	// A second public tier at a higher priority must not shadow the
	// fallback.
	require.NoError(t, store.CreateTier(ctx, &Tier{Name: "Open", Priority: 10, IsPublic: true}))

	fallback, err := store.GetFallbackTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Guest", fallback.Name)
	assert.Equal(t, 0, fallback.Priority)
}

func TestStoreListTiers(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedTiers(t, store)
	require.NoError(t, store.CreateTier(ctx, &Tier{Name: "Director", Priority: 100}))

	all, err := store.ListTiers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Director", all[0].Name)
	assert.Equal(t, "Member", all[1].Name)
	assert.Equal(t, "Guest", all[2].Name)
}

func TestStoreUpdateTier(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	fallback, member := seedTiers(t, store)

	t.Run("membership edit", func(t *testing.T) {
		member.MemberCorporations = []int64{2001, 2002}
		require.NoError(t, store.UpdateTier(ctx, member))

		got, err := store.GetTier(ctx, member.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{2001, 2002}, got.MemberCorporations)
	})

	t.Run("rename persisted", func(t *testing.T) {
		member.Name = "Crew"
		require.NoError(t, store.UpdateTier(ctx, member))

		got, err := store.GetTier(ctx, member.ID)
		require.NoError(t, err)
		assert.Equal(t, "Crew", got.Name)

		_, err = store.GetTierByName(ctx, "Crew")
		assert.NoError(t, err)
		_, err = store.GetTierByName(ctx, "Member")
		assert.Equal(t, ErrTierNotFound, err)
	})

	t.Run("name collision", func(t *testing.T) {
		edited := *member
		edited.Name = fallback.Name
		assert.Equal(t, ErrDuplicateName, store.UpdateTier(ctx, &edited))
	})

	t.Run("priority below fallback rejected", func(t *testing.T) {
		edited := *member
		edited.Priority = -5
		assert.Equal(t, ErrFallbackProtected, store.UpdateTier(ctx, &edited))
	})

	t.Run("priority collision", func(t *testing.T) {
		edited := *member
		edited.Priority = fallback.Priority
		assert.Equal(t, ErrDuplicatePriority, store.UpdateTier(ctx, &edited))
	})

	t.Run("fallback priority edit rejected", func(t *testing.T) {
		edited := *fallback
		edited.Priority = 5
		assert.Equal(t, ErrFallbackProtected, store.UpdateTier(ctx, &edited))
	})

	t.Run("fallback public flag edit rejected", func(t *testing.T) {
		edited := *fallback
		edited.IsPublic = false
		assert.Equal(t, ErrFallbackProtected, store.UpdateTier(ctx, &edited))
	})

	t.Run("fallback membership edit allowed", func(t *testing.T) {
		edited := *fallback
		edited.MemberCharacters = []int64{1001}
		assert.NoError(t, store.UpdateTier(ctx, &edited))
	})

	t.Run("missing tier", func(t *testing.T) {
		assert.Equal(t, ErrTierNotFound, store.UpdateTier(ctx, &Tier{ID: 9999, Priority: 1}))
	})
}

func TestStoreDeleteTier(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	fallback, member := seedTiers(t, store)

	t.Run("fallback protected", func(t *testing.T) {
		assert.Equal(t, ErrFallbackProtected, store.DeleteTier(ctx, fallback.ID))
	})

	t.Run("missing tier", func(t *testing.T) {
		assert.Equal(t, ErrTierNotFound, store.DeleteTier(ctx, 9999))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteTier(ctx, member.ID))
		_, err := store.GetTier(ctx, member.ID)
		assert.Equal(t, ErrTierNotFound, err)
	})
}
