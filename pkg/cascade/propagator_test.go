package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/observability"
	"github.com/stationauth/stationauth/pkg/tiers"
)

// memStore is an in-memory account store with injectable write failures.
type memStore struct {
	mu        sync.Mutex
	accounts  map[int64]*accounts.Account
	tierPrio  map[int64]int
	failWrite map[int64]bool
}

func newMemStore(tierPrio map[int64]int) *memStore {
	return &memStore{
		accounts:  make(map[int64]*accounts.Account),
		tierPrio:  tierPrio,
		failWrite: make(map[int64]bool),
	}
}

func (m *memStore) put(a *accounts.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

func (m *memStore) GetAccount(ctx context.Context, accountID int64) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *memStore) SetCurrentTier(ctx context.Context, accountID, tierID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[accountID] {
		return fmt.Errorf("write failed for account %d", accountID)
	}
	a, ok := m.accounts[accountID]
	if !ok {
		return accounts.ErrAccountNotFound
	}
	a.CurrentTierID = tierID
	return nil
}

func (m *memStore) ListAccountIDsInTier(ctx context.Context, tierID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, a := range m.accounts {
		if a.CurrentTierID == tierID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) ListAccountIDsBelowPriority(ctx context.Context, priority int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, a := range m.accounts {
		if m.tierPrio[a.CurrentTierID] < priority {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) ListAllAccountIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) AccountIDsWithPrimaryCharacter(ctx context.Context, characterID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, a := range m.accounts {
		if a.PrimaryCharacterID != nil && *a.PrimaryCharacterID == characterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type memTierSource struct {
	mu    sync.Mutex
	tiers []*tiers.Tier
}

func (m *memTierSource) ListTiers(ctx context.Context) ([]*tiers.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*tiers.Tier(nil), m.tiers...), nil
}

func (m *memTierSource) GetFallbackTier(ctx context.Context) (*tiers.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tiers {
		if t.IsPublic && t.Priority == 0 {
			return t, nil
		}
	}
	return nil, tiers.ErrTierNotFound
}

type memCharacterSource map[int64]*accounts.Character

func (m memCharacterSource) GetCharacter(ctx context.Context, characterID int64) (*accounts.Character, error) {
	ch, ok := m[characterID]
	if !ok {
		return nil, accounts.ErrCharacterNotFound
	}
	return ch, nil
}

// memOwnership maps character ID to its owning account.
type memOwnership map[int64]int64

func (m memOwnership) IsOwnedBy(ctx context.Context, characterID, accountID int64) (bool, error) {
	owner, ok := m[characterID]
	return ok && owner == accountID, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *eventRecorder) TierChanged(ctx context.Context, event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

// flakyResolver fails each account's first resolution, then delegates.
type flakyResolver struct {
	mu       sync.Mutex
	failed   map[int64]bool
	delegate Resolver
}

func (f *flakyResolver) ResolveForAccount(ctx context.Context, account *accounts.Account) (*tiers.Tier, error) {
	f.mu.Lock()
	first := !f.failed[account.ID]
	f.failed[account.ID] = true
	f.mu.Unlock()
	if first {
		return nil, errors.New("transient resolution failure")
	}
	return f.delegate.ResolveForAccount(ctx, account)
}

func (f *flakyResolver) ResolveForAccountExcluding(ctx context.Context, account *accounts.Account, excludeTierID int64) (*tiers.Tier, error) {
	return f.delegate.ResolveForAccountExcluding(ctx, account, excludeTierID)
}

type world struct {
	store      *memStore
	source     *memTierSource
	characters memCharacterSource
	ownerships memOwnership
	sink       *eventRecorder
	propagator *Propagator
}

const (
	guestTierID  = int64(1)
	memberTierID = int64(2)
	eliteTierID  = int64(3)
)

// newWorld builds a Guest/Member/Elite registry with one corp-affiliated
// pilot per scenario account.
func newWorld(t *testing.T) *world {
	source := &memTierSource{tiers: []*tiers.Tier{
		{ID: guestTierID, Name: "Guest", Priority: 0, IsPublic: true},
		{ID: memberTierID, Name: "Member", Priority: 100, MemberCorporations: []int64{2001}},
		{ID: eliteTierID, Name: "Elite", Priority: 200, MemberCharacters: []int64{42}},
	}}

	store := newMemStore(map[int64]int{guestTierID: 0, memberTierID: 100, eliteTierID: 200})
	characters := memCharacterSource{
		41: {ID: 41, Name: "Line Pilot", CorporationID: 2001},
		42: {ID: 42, Name: "Elite Pilot", CorporationID: 2001},
		43: {ID: 43, Name: "Neutral Pilot", CorporationID: 9999},
	}
	ownerships := memOwnership{41: 1, 42: 2, 43: 3}

	resolver := tiers.NewResolver(tiers.NewRegistry(source), characters, ownerships)
	sink := &eventRecorder{}
	logger := observability.NewLogger(observability.ErrorLevel, testWriter{t})

	p := NewPropagator(store, resolver, source, sink, logger, nil, Config{BatchWorkers: 4})

	return &world{
		store:      store,
		source:     source,
		characters: characters,
		ownerships: ownerships,
		sink:       sink,
		propagator: p,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func primaryID(id int64) *int64 { return &id }

func TestPropagateMembershipEdit(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// Account 1 holds Member through corp 2001.
	w.store.put(&accounts.Account{ID: 1, Active: true, CurrentTierID: memberTierID, PrimaryCharacterID: primaryID(41)})

	// The corp loses its membership.
	w.source.mu.Lock()
	w.source.tiers[1].MemberCorporations = nil
	w.source.mu.Unlock()

	trigger := newTrigger(TierMembershipChanged)
	trigger.TierID = memberTierID
	trigger.TierPriority = 100
	require.NoError(t, w.propagator.Propagate(ctx, trigger))

	got, err := w.store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, guestTierID, got.CurrentTierID)

	events := w.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].AccountID)
	assert.Equal(t, memberTierID, events[0].OldTierID)
	assert.Equal(t, guestTierID, events[0].NewTierID)
}

func TestPropagateHighestPriorityWins(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// Account 2's pilot qualifies for Member through the corp and for
	// Elite by name; Elite's higher priority must win.
	w.store.put(&accounts.Account{ID: 2, Active: true, CurrentTierID: guestTierID, PrimaryCharacterID: primaryID(42)})

	require.NoError(t, w.propagator.Propagate(ctx, newTrigger(TierUpserted)))

	got, err := w.store.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, eliteTierID, got.CurrentTierID)
}

func TestPropagateIsIdempotent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.store.put(&accounts.Account{ID: 1, Active: true, CurrentTierID: guestTierID, PrimaryCharacterID: primaryID(41)})

	require.NoError(t, w.propagator.Propagate(ctx, newTrigger(TierUpserted)))
	require.Len(t, w.sink.all(), 1)

	// Re-running against an unchanged world emits nothing.
	require.NoError(t, w.propagator.Propagate(ctx, newTrigger(TierUpserted)))
	assert.Len(t, w.sink.all(), 1)
}

func TestPropagateDeactivatedAccount(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// Deactivated accounts are force-assigned the fallback tier even
	// though their pilot still qualifies for Member.
	w.store.put(&accounts.Account{ID: 1, Active: false, CurrentTierID: memberTierID, PrimaryCharacterID: primaryID(41)})

	trigger := newTrigger(AccountActiveChanged)
	trigger.AccountID = 1
	require.NoError(t, w.propagator.Propagate(ctx, trigger))

	got, err := w.store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, guestTierID, got.CurrentTierID)
	assert.Len(t, w.sink.all(), 1)
}

func TestPropagateSkipsDeletedAccount(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	trigger := newTrigger(AccountPrimaryChanged)
	trigger.AccountID = 9999
	require.NoError(t, w.propagator.Propagate(ctx, trigger))
	assert.Empty(t, w.sink.all())
}

func TestPropagateSkipAndContinue(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// Both accounts should be demoted, but account 1's write fails.
	w.store.put(&accounts.Account{ID: 1, Active: true, CurrentTierID: memberTierID, PrimaryCharacterID: primaryID(43)})
	w.store.put(&accounts.Account{ID: 3, Active: true, CurrentTierID: memberTierID, PrimaryCharacterID: primaryID(43)})
	w.store.failWrite[1] = true

	require.NoError(t, w.propagator.Propagate(ctx, newTrigger(TierUpserted)))

	got1, err := w.store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, memberTierID, got1.CurrentTierID)

	got3, err := w.store.GetAccount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, guestTierID, got3.CurrentTierID)

	events := w.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].AccountID)
}

func TestPropagateAffiliationTouchesOnlyPrimaryHolders(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// Both accounts hold a stale tier; only account 1's primary is the
	// refreshed character, so only it may be touched.
	w.store.put(&accounts.Account{ID: 1, Active: true, CurrentTierID: guestTierID, PrimaryCharacterID: primaryID(41)})
	w.store.put(&accounts.Account{ID: 2, Active: true, CurrentTierID: guestTierID, PrimaryCharacterID: primaryID(42)})

	trigger := newTrigger(CharacterAffiliationChanged)
	trigger.CharacterID = 41
	require.NoError(t, w.propagator.Propagate(ctx, trigger))

	events := w.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].AccountID)

	got2, err := w.store.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, guestTierID, got2.CurrentTierID)
}

func TestPropagateTierDeleted(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// Account 2 holds Elite; resolving without Elite lands on Member
	// even though the Elite row is still present.
	w.store.put(&accounts.Account{ID: 2, Active: true, CurrentTierID: eliteTierID, PrimaryCharacterID: primaryID(42)})

	require.NoError(t, w.propagator.PropagateTierDeleted(ctx, eliteTierID))

	got, err := w.store.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, memberTierID, got.CurrentTierID)
}

func TestPropagateRetriesTransientFailure(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.store.put(&accounts.Account{ID: 1, Active: true, CurrentTierID: guestTierID, PrimaryCharacterID: primaryID(41)})

	w.propagator.resolver = &flakyResolver{
		failed:   make(map[int64]bool),
		delegate: tiers.NewResolver(tiers.NewRegistry(w.source), w.characters, w.ownerships),
	}

	trigger := newTrigger(AccountPrimaryChanged)
	trigger.AccountID = 1
	require.NoError(t, w.propagator.Propagate(ctx, trigger))

	got, err := w.store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, memberTierID, got.CurrentTierID)
}

func TestPropagatorQueue(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.store.put(&accounts.Account{ID: 1, Active: true, CurrentTierID: guestTierID, PrimaryCharacterID: primaryID(41)})

	w.propagator.Start(ctx)
	require.NoError(t, w.propagator.TierMembershipEdited(ctx, memberTierID, 100))
	w.propagator.Stop()

	got, err := w.store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, memberTierID, got.CurrentTierID)
	assert.Len(t, w.sink.all(), 1)
}

func TestPropagatorEnqueueAfterStop(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.propagator.Start(ctx)
	w.propagator.Stop()

	// Every enqueue after a completed Stop must error; none may panic.
	for i := 0; i < 200; i++ {
		err := w.propagator.TierUpserted(ctx)
		assert.Error(t, err)
	}
}

func TestPropagatorStopRacesEnqueue(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.propagator.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				// Either outcome is fine mid-shutdown; a send panic is not.
				_ = w.propagator.TierUpserted(ctx)
			}
		}()
	}

	w.propagator.Stop()
	wg.Wait()
}

func TestPropagateUnknownTriggerKind(t *testing.T) {
	w := newWorld(t)

	err := w.propagator.Propagate(context.Background(), &Trigger{Kind: "bogus", EnqueuedAt: time.Now()})
	assert.Error(t, err)
}

func TestMergeIDs(t *testing.T) {
	merged := mergeIDs([]int64{1, 2, 3}, []int64{2, 3, 4})
	assert.Equal(t, []int64{1, 2, 3, 4}, merged)

	assert.Empty(t, mergeIDs(nil, nil))
}
