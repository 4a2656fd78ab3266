package sso

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Credential is one stored SSO credential. Several credentials can share
// an owner hash (the same player authorizing from multiple sessions);
// ownership survives for as long as any of them is live.
type Credential struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	CharacterID  int64     `json:"character_id"`
	OwnerHash    string    `json:"owner_hash"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CredentialStore persists live SSO credentials.
type CredentialStore struct {
	db *sql.DB
}

// NewCredentialStore creates a credential store.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// AddCredential stores a credential obtained from a token exchange.
func (s *CredentialStore) AddCredential(ctx context.Context, c *Credential) error {
	query := `
		INSERT INTO credentials (account_id, character_id, owner_hash, refresh_token)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query, c.AccountID, c.CharacterID, c.OwnerHash, c.RefreshToken).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to add credential: %w", err)
	}
	return nil
}

// RemoveCredential deletes a credential. Returns the removed credential
// so the caller can decide whether ownership revocation should follow.
func (s *CredentialStore) RemoveCredential(ctx context.Context, credentialID int64) (*Credential, error) {
	query := `
		DELETE FROM credentials WHERE id = $1
		RETURNING id, account_id, character_id, owner_hash, created_at`

	c := &Credential{}
	err := s.db.QueryRowContext(ctx, query, credentialID).Scan(
		&c.ID, &c.AccountID, &c.CharacterID, &c.OwnerHash, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("credential %d not found", credentialID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to remove credential: %w", err)
	}
	return c, nil
}

// HasLiveCredential reports whether any stored credential still attests
// to the owner hash. Satisfies the ownership ledger's credential source.
func (s *CredentialStore) HasLiveCredential(ctx context.Context, ownerHash string) (bool, error) {
	query := `SELECT COUNT(*) FROM credentials WHERE owner_hash = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, ownerHash).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check credentials: %w", err)
	}
	return count > 0, nil
}

// ListByAccount lists the credentials held by an account.
func (s *CredentialStore) ListByAccount(ctx context.Context, accountID int64) ([]*Credential, error) {
	query := `
		SELECT id, account_id, character_id, owner_hash, created_at
		FROM credentials WHERE account_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var result []*Credential
	for rows.Next() {
		c := &Credential{}
		if err := rows.Scan(&c.ID, &c.AccountID, &c.CharacterID, &c.OwnerHash, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
