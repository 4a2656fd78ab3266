package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/cascade"
	"github.com/stationauth/stationauth/pkg/tiers"
)

// GroupClient is the remote forum API surface the service needs. Group
// IDs are remote-assigned and opaque; names are the stable handle.
type GroupClient interface {
	LookupGroup(ctx context.Context, name string) (int64, error)
	AssignGroup(ctx context.Context, username string, groupID int64) error
	Suspend(ctx context.Context, username string) error
}

// TierSource provides tier lookups for deliveries.
type TierSource interface {
	GetTier(ctx context.Context, tierID int64) (*tiers.Tier, error)
}

// ForumService syncs accounts into a remote forum. Tier names map to
// forum group names one to one; remote group IDs are resolved through
// the client and held in a per-service TTL cache so routine deliveries
// skip the lookup round trip.
type ForumService struct {
	client   GroupClient
	accounts AccountSource
	tiers    TierSource
	groups   *GroupCache
}

// NewForumService creates the service with its own group cache.
func NewForumService(client GroupClient, accountSource AccountSource, tierSource TierSource) *ForumService {
	return &ForumService{
		client:   client,
		accounts: accountSource,
		tiers:    tierSource,
		groups:   NewGroupCache(128, 15*time.Minute),
	}
}

func (s *ForumService) Name() string { return "forum" }

// Validate puts the account in the group matching its current tier, or
// suspends it when inactive. Safe to call repeatedly.
func (s *ForumService) Validate(ctx context.Context, account *accounts.Account) error {
	if !account.Active {
		return s.client.Suspend(ctx, account.Username)
	}

	tier, err := s.tiers.GetTier(ctx, account.CurrentTierID)
	if err != nil {
		return fmt.Errorf("resolve tier %d: %w", account.CurrentTierID, err)
	}
	return s.assign(ctx, account.Username, tier.Name)
}

// TierChanged moves the account into the group for its new tier.
func (s *ForumService) TierChanged(ctx context.Context, event *cascade.Event) error {
	account, err := s.accounts.GetAccount(ctx, event.AccountID)
	if err != nil {
		return fmt.Errorf("load account %d: %w", event.AccountID, err)
	}
	tier, err := s.tiers.GetTier(ctx, event.NewTierID)
	if err != nil {
		return fmt.Errorf("resolve tier %d: %w", event.NewTierID, err)
	}
	return s.assign(ctx, account.Username, tier.Name)
}

func (s *ForumService) assign(ctx context.Context, username, groupName string) error {
	groupID, err := s.groups.GetOrFetch(ctx, groupName, s.client.LookupGroup)
	if err != nil {
		return fmt.Errorf("lookup group %q: %w", groupName, err)
	}
	if err := s.client.AssignGroup(ctx, username, groupID); err != nil {
		// The remote may have recreated the group under a new ID.
		s.groups.Invalidate(groupName)
		return err
	}
	return nil
}
