package tiers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store handles tier persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new tier store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTier creates a new tier. Priority collisions are rejected with
// ErrDuplicatePriority before any write; the unique index is a backstop.
// Priorities below the fallback tier's are rejected with
// ErrFallbackProtected so the fallback stays the floor.
func (s *Store) CreateTier(ctx context.Context, tier *Tier) error {
	taken, err := s.priorityTaken(ctx, tier.Priority, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicatePriority
	}

	taken, err = s.nameTaken(ctx, tier.Name, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateName
	}

	fallback, err := s.GetFallbackTier(ctx)
	if err != nil && err != ErrTierNotFound {
		return err
	}
	if err == nil && tier.Priority < fallback.Priority {
		// The fallback must stay the minimum-priority tier; a create
		// below it would silently transfer fallback status.
		return ErrFallbackProtected
	}

	charsJSON, corpsJSON, alliancesJSON, err := marshalMembers(tier)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tiers (name, priority, is_public, member_characters, member_corporations, member_alliances, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		tier.Name,
		tier.Priority,
		tier.IsPublic,
		charsJSON,
		corpsJSON,
		alliancesJSON,
		now,
		now,
	).Scan(&tier.ID)

	if err != nil {
		return fmt.Errorf("failed to create tier: %w", err)
	}

	tier.CreatedAt = now
	tier.UpdatedAt = now
	return nil
}

// GetTier retrieves a tier by ID.
func (s *Store) GetTier(ctx context.Context, tierID int64) (*Tier, error) {
	query := `
		SELECT id, name, priority, is_public, member_characters, member_corporations, member_alliances, created_at, updated_at
		FROM tiers
		WHERE id = $1
	`
	return s.getTier(ctx, query, tierID)
}

// GetTierByName retrieves a tier by its unique name.
func (s *Store) GetTierByName(ctx context.Context, name string) (*Tier, error) {
	query := `
		SELECT id, name, priority, is_public, member_characters, member_corporations, member_alliances, created_at, updated_at
		FROM tiers
		WHERE name = $1
	`
	return s.getTier(ctx, query, name)
}

// GetFallbackTier retrieves the reserved fallback tier: the public tier
// at the minimum priority.
func (s *Store) GetFallbackTier(ctx context.Context) (*Tier, error) {
	query := `
		SELECT id, name, priority, is_public, member_characters, member_corporations, member_alliances, created_at, updated_at
		FROM tiers
		WHERE is_public = TRUE
		ORDER BY priority ASC
		LIMIT 1
	`
	return s.getTier(ctx, query)
}

func (s *Store) getTier(ctx context.Context, query string, args ...interface{}) (*Tier, error) {
	tier, err := scanTier(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrTierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}
	return tier, nil
}

// ListTiers lists all tiers ordered by priority descending.
func (s *Store) ListTiers(ctx context.Context) ([]*Tier, error) {
	query := `
		SELECT id, name, priority, is_public, member_characters, member_corporations, member_alliances, created_at, updated_at
		FROM tiers
		ORDER BY priority DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	defer rows.Close()

	var result []*Tier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		result = append(result, tier)
	}

	return result, rows.Err()
}

// UpdateTier updates a tier's priority, public flag, and membership sets.
// The fallback tier accepts membership edits only: its priority and
// public flag keep the registry invariant and are protected.
func (s *Store) UpdateTier(ctx context.Context, tier *Tier) error {
	current, err := s.GetTier(ctx, tier.ID)
	if err != nil {
		return err
	}

	fallback, err := s.GetFallbackTier(ctx)
	if err != nil {
		return err
	}
	if current.ID == fallback.ID && (tier.Priority != current.Priority || !tier.IsPublic) {
		return ErrFallbackProtected
	}

	if tier.Priority != current.Priority {
		if tier.Priority < fallback.Priority {
			return ErrFallbackProtected
		}
		taken, err := s.priorityTaken(ctx, tier.Priority, tier.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicatePriority
		}
	}

	if tier.Name != current.Name {
		taken, err := s.nameTaken(ctx, tier.Name, tier.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateName
		}
	}

	charsJSON, corpsJSON, alliancesJSON, err := marshalMembers(tier)
	if err != nil {
		return err
	}

	query := `
		UPDATE tiers
		SET name = $1, priority = $2, is_public = $3, member_characters = $4, member_corporations = $5, member_alliances = $6, updated_at = $7
		WHERE id = $8
	`

	tier.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx, query,
		tier.Name,
		tier.Priority,
		tier.IsPublic,
		charsJSON,
		corpsJSON,
		alliancesJSON,
		tier.UpdatedAt,
		tier.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}

	return nil
}

// DeleteTier deletes a tier. Deleting the fallback tier is rejected
// outright; the caller is responsible for cascading the reassignment of
// every account that held the deleted tier.
func (s *Store) DeleteTier(ctx context.Context, tierID int64) error {
	fallback, err := s.GetFallbackTier(ctx)
	if err != nil {
		return err
	}
	if tierID == fallback.ID {
		return ErrFallbackProtected
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM tiers WHERE id = $1`, tierID)
	if err != nil {
		return fmt.Errorf("failed to delete tier: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTierNotFound
	}

	return nil
}

func (s *Store) priorityTaken(ctx context.Context, priority int, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tiers WHERE priority = $1 AND id != $2`,
		priority, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check priority: %w", err)
	}
	return count > 0, nil
}

func (s *Store) nameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tiers WHERE name = $1 AND id != $2`,
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check name: %w", err)
	}
	return count > 0, nil
}

func marshalMembers(tier *Tier) (string, string, string, error) {
	chars, err := json.Marshal(emptyIfNil(tier.MemberCharacters))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal member characters: %w", err)
	}
	corps, err := json.Marshal(emptyIfNil(tier.MemberCorporations))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal member corporations: %w", err)
	}
	alliances, err := json.Marshal(emptyIfNil(tier.MemberAlliances))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal member alliances: %w", err)
	}
	return string(chars), string(corps), string(alliances), nil
}

func emptyIfNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// scanTier scans a tier from a database row.
func scanTier(scanner interface {
	Scan(dest ...interface{}) error
}) (*Tier, error) {
	var tier Tier
	var charsJSON, corpsJSON, alliancesJSON string

	err := scanner.Scan(
		&tier.ID,
		&tier.Name,
		&tier.Priority,
		&tier.IsPublic,
		&charsJSON,
		&corpsJSON,
		&alliancesJSON,
		&tier.CreatedAt,
		&tier.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(charsJSON), &tier.MemberCharacters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member characters: %w", err)
	}
	if err := json.Unmarshal([]byte(corpsJSON), &tier.MemberCorporations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member corporations: %w", err)
	}
	if err := json.Unmarshal([]byte(alliancesJSON), &tier.MemberAlliances); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member alliances: %w", err)
	}

	return &tier, nil
}
