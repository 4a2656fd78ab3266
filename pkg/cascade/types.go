package cascade

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/tiers"
)

// TriggerKind identifies which fact changed.
type TriggerKind string

const (
	// TierMembershipChanged fires when a tier's member sets were edited.
	// Candidates: holders of that tier (demotion) plus holders of any
	// lower-priority tier (promotion).
	TierMembershipChanged TriggerKind = "tier_membership_changed"

	// TierUpserted fires when a tier was created or its priority or
	// public flag changed. Candidates: every account.
	TierUpserted TriggerKind = "tier_upserted"

	// TierDeleted fires when a tier is being removed. Candidates:
	// holders of that tier, resolved as if the tier no longer exists.
	TierDeleted TriggerKind = "tier_deleted"

	// AccountPrimaryChanged fires when an account's primary character
	// was assigned or cleared. Candidate: that account.
	AccountPrimaryChanged TriggerKind = "account_primary_changed"

	// AccountActiveChanged fires when an account's active flag flipped.
	// Candidate: that account.
	AccountActiveChanged TriggerKind = "account_active_changed"

	// CharacterAffiliationChanged fires when a character's corporation
	// or alliance was refreshed upstream. Candidates: accounts holding
	// it as primary.
	CharacterAffiliationChanged TriggerKind = "character_affiliation_changed"
)

// Trigger is one fact change awaiting propagation.
type Trigger struct {
	ID           string      `json:"id"`
	Kind         TriggerKind `json:"kind"`
	TierID       int64       `json:"tier_id,omitempty"`
	TierPriority int         `json:"tier_priority,omitempty"`
	AccountID    int64       `json:"account_id,omitempty"`
	CharacterID  int64       `json:"character_id,omitempty"`
	EnqueuedAt   time.Time   `json:"enqueued_at"`
}

func newTrigger(kind TriggerKind) *Trigger {
	return &Trigger{
		ID:         uuid.NewString(),
		Kind:       kind,
		EnqueuedAt: time.Now(),
	}
}

// Event records one actual tier change. Emitted at most once per change
// and never when a re-evaluation recomputes the stored answer.
type Event struct {
	ID         string    `json:"id"`
	AccountID  int64     `json:"account_id"`
	OldTierID  int64     `json:"old_tier_id"`
	NewTierID  int64     `json:"new_tier_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventSink consumes tier change events. Sink failures never roll back
// the assignment that produced the event.
type EventSink interface {
	TierChanged(ctx context.Context, event *Event)
}

// AccountStore is the slice of the account store the propagator needs.
type AccountStore interface {
	GetAccount(ctx context.Context, accountID int64) (*accounts.Account, error)
	SetCurrentTier(ctx context.Context, accountID, tierID int64) error
	ListAccountIDsInTier(ctx context.Context, tierID int64) ([]int64, error)
	ListAccountIDsBelowPriority(ctx context.Context, priority int) ([]int64, error)
	ListAllAccountIDs(ctx context.Context) ([]int64, error)
	AccountIDsWithPrimaryCharacter(ctx context.Context, characterID int64) ([]int64, error)
}

// Resolver computes the tier an account should hold.
type Resolver interface {
	ResolveForAccount(ctx context.Context, account *accounts.Account) (*tiers.Tier, error)
	ResolveForAccountExcluding(ctx context.Context, account *accounts.Account, excludeTierID int64) (*tiers.Tier, error)
}

// FallbackSource returns the reserved fallback tier, used to force-assign
// deactivated accounts without running resolution.
type FallbackSource interface {
	GetFallbackTier(ctx context.Context) (*tiers.Tier, error)
}
