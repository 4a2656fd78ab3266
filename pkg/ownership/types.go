package ownership

import (
	"errors"
	"time"
)

var (
	// ErrOwnershipConflict is returned when a supersede or revoke would
	// displace a binding whose credential is still live.
	ErrOwnershipConflict = errors.New("ownership conflict: existing binding has a live credential")

	// ErrOwnershipNotFound is returned when no current binding exists
	// for a character.
	ErrOwnershipNotFound = errors.New("ownership not found")
)

// Ownership is the current binding of a character to an account.
type Ownership struct {
	CharacterID int64     `json:"character_id"`
	AccountID   int64     `json:"account_id"`
	OwnerHash   string    `json:"owner_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is an append-only historical entry written whenever a current
// binding is removed. Records are never updated or deleted.
type Record struct {
	ID          int64     `json:"id"`
	CharacterID int64     `json:"character_id"`
	AccountID   int64     `json:"account_id"`
	OwnerHash   string    `json:"owner_hash"`
	CreatedAt   time.Time `json:"created_at"`
}
