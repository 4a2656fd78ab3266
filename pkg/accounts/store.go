package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles account and character persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new account store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateAccount creates a new account. CurrentTierID must already be set
// to an existing tier; new accounts start on the fallback tier.
func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (username, current_tier_id, primary_character_id, active, password_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		account.Username,
		account.CurrentTierID,
		account.PrimaryCharacterID,
		account.Active,
		account.PasswordLogin,
		now,
		now,
	).Scan(&account.ID)

	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetAccount retrieves an account by ID.
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	query := `
		SELECT id, username, current_tier_id, primary_character_id, active, password_login, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var account Account
	var primaryCharacterID sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.ID,
		&account.Username,
		&account.CurrentTierID,
		&primaryCharacterID,
		&account.Active,
		&account.PasswordLogin,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if primaryCharacterID.Valid {
		id := primaryCharacterID.Int64
		account.PrimaryCharacterID = &id
	}

	return &account, nil
}

// SetCurrentTier writes the account's current tier assignment.
func (s *Store) SetCurrentTier(ctx context.Context, accountID, tierID int64) error {
	query := `UPDATE accounts SET current_tier_id = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, tierID, time.Now(), accountID)
	if err != nil {
		return fmt.Errorf("failed to set current tier: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// SetPrimaryCharacter assigns or clears the account's primary character.
func (s *Store) SetPrimaryCharacter(ctx context.Context, accountID int64, characterID *int64) error {
	query := `UPDATE accounts SET primary_character_id = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, characterID, time.Now(), accountID)
	if err != nil {
		return fmt.Errorf("failed to set primary character: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// SetActive flips the account's active flag.
func (s *Store) SetActive(ctx context.Context, accountID int64, active bool) error {
	query := `UPDATE accounts SET active = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, active, time.Now(), accountID)
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// ListAccountsInTier retrieves all accounts currently assigned to a tier.
func (s *Store) ListAccountsInTier(ctx context.Context, tierID int64) ([]*Account, error) {
	query := `
		SELECT id, username, current_tier_id, primary_character_id, active, password_login, created_at, updated_at
		FROM accounts
		WHERE current_tier_id = $1
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tierID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts in tier: %w", err)
	}
	defer rows.Close()

	var result []*Account
	for rows.Next() {
		var account Account
		var primaryCharacterID sql.NullInt64

		if err := rows.Scan(
			&account.ID,
			&account.Username,
			&account.CurrentTierID,
			&primaryCharacterID,
			&account.Active,
			&account.PasswordLogin,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}

		if primaryCharacterID.Valid {
			id := primaryCharacterID.Int64
			account.PrimaryCharacterID = &id
		}

		result = append(result, &account)
	}

	return result, rows.Err()
}

// ListAccountIDsInTier retrieves the IDs of accounts currently assigned
// to a tier. Used by cascades that only need the candidate set.
func (s *Store) ListAccountIDsInTier(ctx context.Context, tierID int64) ([]int64, error) {
	query := `SELECT id FROM accounts WHERE current_tier_id = $1 ORDER BY id ASC`
	return s.queryIDs(ctx, query, tierID)
}

// ListAccountIDsBelowPriority retrieves the IDs of accounts whose current
// tier has a priority strictly below the given value. These are the
// promotion candidates when a higher tier's membership grows.
func (s *Store) ListAccountIDsBelowPriority(ctx context.Context, priority int) ([]int64, error) {
	query := `
		SELECT a.id
		FROM accounts a
		JOIN tiers t ON a.current_tier_id = t.id
		WHERE t.priority < $1
		ORDER BY a.id ASC
	`
	return s.queryIDs(ctx, query, priority)
}

// ListAllAccountIDs retrieves every account ID. Only full-registry
// cascades (tier created or priority/public edited) pay this cost.
func (s *Store) ListAllAccountIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT id FROM accounts ORDER BY id ASC`
	return s.queryIDs(ctx, query)
}

// AccountIDsWithPrimaryCharacter retrieves the accounts for which the
// given character is the primary identity.
func (s *Store) AccountIDsWithPrimaryCharacter(ctx context.Context, characterID int64) ([]int64, error) {
	query := `SELECT id FROM accounts WHERE primary_character_id = $1 ORDER BY id ASC`
	return s.queryIDs(ctx, query, characterID)
}

// ListAccountIDsWithStaleCharacters retrieves accounts whose primary
// character has not been refreshed since the given time.
func (s *Store) ListAccountIDsWithStaleCharacters(ctx context.Context, since time.Time) ([]int64, error) {
	query := `
		SELECT a.id
		FROM accounts a
		JOIN characters c ON a.primary_character_id = c.id
		WHERE c.updated_at < $1
		ORDER BY a.id ASC
	`
	return s.queryIDs(ctx, query, since)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query account ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpsertCharacter inserts a character or refreshes its name and
// affiliation fields. The character ID is the immutable identity key.
func (s *Store) UpsertCharacter(ctx context.Context, ch *Character) error {
	query := `
		INSERT INTO characters (id, name, corporation_id, alliance_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, corporation_id = EXCLUDED.corporation_id,
		    alliance_id = EXCLUDED.alliance_id, updated_at = EXCLUDED.updated_at
	`

	ch.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, query, ch.ID, ch.Name, ch.CorporationID, ch.AllianceID, ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert character: %w", err)
	}

	return nil
}

// EnsureCharacter inserts a character stub if it does not exist, or
// refreshes its name if it does. Affiliation fields are left untouched;
// those are refreshed separately from the upstream source.
func (s *Store) EnsureCharacter(ctx context.Context, characterID int64, name string) error {
	query := `
		INSERT INTO characters (id, name, corporation_id, alliance_id, updated_at)
		VALUES ($1, $2, 0, NULL, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, characterID, name, time.Now())
	if err != nil {
		return fmt.Errorf("failed to ensure character: %w", err)
	}

	return nil
}

// GetCharacter retrieves a character by ID.
func (s *Store) GetCharacter(ctx context.Context, characterID int64) (*Character, error) {
	query := `SELECT id, name, corporation_id, alliance_id, updated_at FROM characters WHERE id = $1`

	var ch Character
	var allianceID sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, characterID).Scan(
		&ch.ID,
		&ch.Name,
		&ch.CorporationID,
		&allianceID,
		&ch.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrCharacterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}

	if allianceID.Valid {
		id := allianceID.Int64
		ch.AllianceID = &id
	}

	return &ch, nil
}
