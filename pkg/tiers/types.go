package tiers

import (
	"errors"
	"time"

	"github.com/stationauth/stationauth/pkg/accounts"
)

var (
	// ErrDuplicatePriority is returned when a tier create or edit would
	// collide with an existing tier's priority. Ties are never permitted.
	ErrDuplicatePriority = errors.New("tier priority already in use")

	// ErrDuplicateName is returned when a tier create or rename would
	// collide with an existing tier's name.
	ErrDuplicateName = errors.New("tier name already in use")

	// ErrFallbackProtected is returned for a delete, or a priority/public
	// flag edit, targeting the fallback tier.
	ErrFallbackProtected = errors.New("fallback tier is protected")

	// ErrTierNotFound is returned when a tier does not exist.
	ErrTierNotFound = errors.New("tier not found")
)

// Tier represents an authorization level with a priority and a
// membership predicate.
type Tier struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Priority           int       `json:"priority"`
	IsPublic           bool      `json:"is_public"`
	MemberCharacters   []int64   `json:"member_characters"`
	MemberCorporations []int64   `json:"member_corporations"`
	MemberAlliances    []int64   `json:"member_alliances"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AvailableTo reports whether the tier is available to the given character.
func (t *Tier) AvailableTo(ch *accounts.Character) bool {
	if t.IsPublic {
		return true
	}
	if ch == nil {
		return false
	}
	if containsID(t.MemberCharacters, ch.ID) {
		return true
	}
	if containsID(t.MemberCorporations, ch.CorporationID) {
		return true
	}
	if ch.AllianceID != nil && containsID(t.MemberAlliances, *ch.AllianceID) {
		return true
	}
	return false
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
