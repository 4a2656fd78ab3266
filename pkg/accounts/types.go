package accounts

import (
	"errors"
	"time"
)

var (
	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCharacterNotFound is returned when a character does not exist.
	ErrCharacterNotFound = errors.New("character not found")
)

// Account represents a local identity with exactly one current tier.
type Account struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	CurrentTierID      int64     `json:"current_tier_id"`
	PrimaryCharacterID *int64    `json:"primary_character_id,omitempty"`
	Active             bool      `json:"active"`
	PasswordLogin      bool      `json:"password_login"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Character represents an external game identity. The ID is immutable;
// corporation and alliance are refreshed from the external source.
type Character struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	CorporationID int64     `json:"corporation_id"`
	AllianceID    *int64    `json:"alliance_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
