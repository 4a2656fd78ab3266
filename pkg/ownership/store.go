package ownership

import (
	"context"
	"database/sql"
	"fmt"
)

// Store provides database operations for ownerships and their
// historical records.
type Store struct {
	db *sql.DB
}

// NewStore creates a new ownership store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOwnership retrieves the current binding for a character.
func (s *Store) GetOwnership(ctx context.Context, characterID int64) (*Ownership, error) {
	query := `
		SELECT character_id, account_id, owner_hash, created_at
		FROM ownerships WHERE character_id = $1`

	o := &Ownership{}
	err := s.db.QueryRowContext(ctx, query, characterID).Scan(
		&o.CharacterID, &o.AccountID, &o.OwnerHash, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOwnershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ownership: %w", err)
	}
	return o, nil
}

// CreateOwnership inserts a current binding for a character.
func (s *Store) CreateOwnership(ctx context.Context, o *Ownership) error {
	query := `
		INSERT INTO ownerships (character_id, account_id, owner_hash)
		VALUES ($1, $2, $3)`

	_, err := s.db.ExecContext(ctx, query, o.CharacterID, o.AccountID, o.OwnerHash)
	if err != nil {
		return fmt.Errorf("failed to create ownership: %w", err)
	}
	return nil
}

// DeleteOwnership removes the current binding for a character.
func (s *Store) DeleteOwnership(ctx context.Context, characterID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ownerships WHERE character_id = $1`, characterID)
	if err != nil {
		return fmt.Errorf("failed to delete ownership: %w", err)
	}
	return nil
}

// IsOwnedBy reports whether the character is currently bound to the
// given account.
func (s *Store) IsOwnedBy(ctx context.Context, characterID, accountID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM ownerships WHERE character_id = $1 AND account_id = $2`

	var count int
	if err := s.db.QueryRowContext(ctx, query, characterID, accountID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check ownership: %w", err)
	}
	return count > 0, nil
}

// ListByAccount lists all current bindings held by an account.
func (s *Store) ListByAccount(ctx context.Context, accountID int64) ([]*Ownership, error) {
	query := `
		SELECT character_id, account_id, owner_hash, created_at
		FROM ownerships WHERE account_id = $1 ORDER BY character_id`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ownerships: %w", err)
	}
	defer rows.Close()

	var result []*Ownership
	for rows.Next() {
		o := &Ownership{}
		if err := rows.Scan(&o.CharacterID, &o.AccountID, &o.OwnerHash, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ownership: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// AppendRecord writes a historical record for a binding that is being
// removed.
func (s *Store) AppendRecord(ctx context.Context, r *Record) error {
	query := `
		INSERT INTO ownership_records (character_id, account_id, owner_hash)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query, r.CharacterID, r.AccountID, r.OwnerHash).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to append ownership record: %w", err)
	}
	return nil
}

// FindRecord returns the most recent historical record for the given
// owner hash and character, or nil when the pair has never been bound.
func (s *Store) FindRecord(ctx context.Context, ownerHash string, characterID int64) (*Record, error) {
	query := `
		SELECT id, character_id, account_id, owner_hash, created_at
		FROM ownership_records
		WHERE owner_hash = $1 AND character_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	r := &Record{}
	err := s.db.QueryRowContext(ctx, query, ownerHash, characterID).Scan(
		&r.ID, &r.CharacterID, &r.AccountID, &r.OwnerHash, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ownership record: %w", err)
	}
	return r, nil
}
