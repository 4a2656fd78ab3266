package cascade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/observability"
	"github.com/stationauth/stationauth/pkg/tiers"
)

// Config controls propagator concurrency.
type Config struct {
	// Workers is the number of goroutines consuming the trigger queue.
	Workers int
	// QueueSize is the trigger queue buffer.
	QueueSize int
	// BatchWorkers bounds concurrent account re-evaluations within one
	// trigger's batch.
	BatchWorkers int
}

// DefaultConfig returns the default propagator configuration.
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		QueueSize:    256,
		BatchWorkers: 8,
	}
}

// Propagator consumes triggers and re-resolves the affected accounts.
type Propagator struct {
	accounts AccountStore
	resolver Resolver
	fallback FallbackSource
	sink     EventSink
	logger   *observability.Logger
	metrics  *observability.Metrics

	cfg   Config
	queue chan *Trigger
	locks *keyedMutex

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPropagator creates a propagator. The sink may be nil when no
// dependent services are registered; metrics may be nil in tests.
func NewPropagator(accountStore AccountStore, resolver Resolver, fallback FallbackSource, sink EventSink, logger *observability.Logger, metrics *observability.Metrics, cfg Config) *Propagator {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 8
	}

	return &Propagator{
		accounts: accountStore,
		resolver: resolver,
		fallback: fallback,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		queue:    make(chan *Trigger, cfg.QueueSize),
		locks:    newKeyedMutex(),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the queue consumers.
func (p *Propagator) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			defer observability.RecoverPanic(p.logger, fmt.Sprintf("cascade worker %d", id))
			p.consume(ctx)
		}(i)
	}
}

// Stop signals the workers and waits for buffered triggers to drain.
// The queue channel is never closed: trigger sources may still race a
// shutdown, and a send on a closed channel would panic them.
func (p *Propagator) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

func (p *Propagator) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.drain(ctx)
			return
		case trigger := <-p.queue:
			p.process(ctx, trigger)
		}
	}
}

// drain processes whatever is already buffered, then returns. Triggers
// enqueued after this point are lost; the reconciliation sweep repairs
// them.
func (p *Propagator) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-p.queue:
			p.process(ctx, trigger)
		default:
			return
		}
	}
}

func (p *Propagator) process(ctx context.Context, trigger *Trigger) {
	if p.metrics != nil {
		p.metrics.CascadeQueueDepth.Dec()
	}
	if err := p.Propagate(ctx, trigger); err != nil {
		p.logger.WithError(err).
			WithField("trigger_id", trigger.ID).
			WithField("kind", string(trigger.Kind)).
			Error("cascade trigger failed")
	}
}

func (p *Propagator) enqueue(ctx context.Context, trigger *Trigger) error {
	// Checked on its own first: the combined select below picks
	// uniformly among ready cases and must not mask a finished stop.
	select {
	case <-p.stopCh:
		return fmt.Errorf("propagator stopped")
	default:
	}

	select {
	case <-p.stopCh:
		return fmt.Errorf("propagator stopped")
	case <-ctx.Done():
		return ctx.Err()
	case p.queue <- trigger:
		if p.metrics != nil {
			p.metrics.CascadeQueueDepth.Inc()
		}
		return nil
	}
}

// TierMembershipEdited enqueues a cascade for a tier whose member sets
// changed. The tier's current priority bounds the promotion candidates.
func (p *Propagator) TierMembershipEdited(ctx context.Context, tierID int64, priority int) error {
	t := newTrigger(TierMembershipChanged)
	t.TierID = tierID
	t.TierPriority = priority
	return p.enqueue(ctx, t)
}

// TierUpserted enqueues a full-scan cascade after a tier was created or
// its priority or public flag changed.
func (p *Propagator) TierUpserted(ctx context.Context) error {
	return p.enqueue(ctx, newTrigger(TierUpserted))
}

// TierDeleted enqueues reassignment of every holder of a tier being
// removed.
func (p *Propagator) TierDeleted(ctx context.Context, tierID int64) error {
	t := newTrigger(TierDeleted)
	t.TierID = tierID
	return p.enqueue(ctx, t)
}

// PropagateTierDeleted reassigns every holder of a tier synchronously.
// Deletion requires its holders moved off before the row goes away, so
// this one cascade cannot be deferred to the queue.
func (p *Propagator) PropagateTierDeleted(ctx context.Context, tierID int64) error {
	t := newTrigger(TierDeleted)
	t.TierID = tierID
	return p.Propagate(ctx, t)
}

// AccountPrimaryChanged enqueues re-evaluation of one account whose
// primary character was assigned or cleared. Satisfies the ownership
// ledger's trigger sink.
func (p *Propagator) AccountPrimaryChanged(ctx context.Context, accountID int64) error {
	t := newTrigger(AccountPrimaryChanged)
	t.AccountID = accountID
	return p.enqueue(ctx, t)
}

// AccountActiveChanged enqueues re-evaluation of one account whose
// active flag flipped.
func (p *Propagator) AccountActiveChanged(ctx context.Context, accountID int64) error {
	t := newTrigger(AccountActiveChanged)
	t.AccountID = accountID
	return p.enqueue(ctx, t)
}

// CharacterAffiliationChanged enqueues re-evaluation of the accounts
// whose primary character's affiliations were refreshed.
func (p *Propagator) CharacterAffiliationChanged(ctx context.Context, characterID int64) error {
	t := newTrigger(CharacterAffiliationChanged)
	t.CharacterID = characterID
	return p.enqueue(ctx, t)
}

// Propagate processes one trigger synchronously: selects the affected
// accounts and re-evaluates each. One failing account never aborts the
// batch; failures surface only as aggregate diagnostics.
func (p *Propagator) Propagate(ctx context.Context, trigger *Trigger) error {
	start := time.Now()

	candidates, excludeTierID, err := p.affectedAccounts(ctx, trigger)
	if err != nil {
		return fmt.Errorf("failed to select affected accounts: %w", err)
	}

	if p.metrics != nil {
		p.metrics.CascadeTriggersTotal.WithLabelValues(string(trigger.Kind)).Inc()
		p.metrics.CascadeAffectedSize.WithLabelValues(string(trigger.Kind)).Observe(float64(len(candidates)))
		defer func() {
			p.metrics.CascadeDuration.WithLabelValues(string(trigger.Kind)).Observe(time.Since(start).Seconds())
		}()
	}

	failed := p.runBatch(ctx, candidates, excludeTierID)
	if failed > 0 {
		p.logger.WithFields(map[string]interface{}{
			"trigger_id": trigger.ID,
			"kind":       string(trigger.Kind),
			"candidates": len(candidates),
			"failed":     failed,
		}).Warn("cascade batch completed with failures")
	}
	return nil
}

// affectedAccounts maps a trigger to its minimal candidate set, plus the
// tier to resolve without when cascading a deletion.
func (p *Propagator) affectedAccounts(ctx context.Context, trigger *Trigger) ([]int64, int64, error) {
	switch trigger.Kind {
	case TierMembershipChanged:
		// Holders evaluated for demotion, lower-priority holders for
		// promotion into the edited tier.
		holders, err := p.accounts.ListAccountIDsInTier(ctx, trigger.TierID)
		if err != nil {
			return nil, 0, err
		}
		below, err := p.accounts.ListAccountIDsBelowPriority(ctx, trigger.TierPriority)
		if err != nil {
			return nil, 0, err
		}
		return mergeIDs(holders, below), 0, nil

	case TierUpserted:
		ids, err := p.accounts.ListAllAccountIDs(ctx)
		return ids, 0, err

	case TierDeleted:
		ids, err := p.accounts.ListAccountIDsInTier(ctx, trigger.TierID)
		return ids, trigger.TierID, err

	case AccountPrimaryChanged, AccountActiveChanged:
		return []int64{trigger.AccountID}, 0, nil

	case CharacterAffiliationChanged:
		ids, err := p.accounts.AccountIDsWithPrimaryCharacter(ctx, trigger.CharacterID)
		return ids, 0, err

	default:
		return nil, 0, fmt.Errorf("unknown trigger kind %q", trigger.Kind)
	}
}

// runBatch re-evaluates the candidates with bounded concurrency and
// skip-and-continue failure semantics. Returns the number of failures.
func (p *Propagator) runBatch(ctx context.Context, candidates []int64, excludeTierID int64) int {
	if len(candidates) == 0 {
		return 0
	}

	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.BatchWorkers)

	for _, accountID := range candidates {
		accountID := accountID
		g.Go(func() error {
			if err := p.reevaluateWithRetry(gctx, accountID, excludeTierID); err != nil {
				p.logger.WithError(err).
					WithField("account_id", accountID).
					Warn("account re-evaluation failed, continuing batch")
				mu.Lock()
				failed++
				mu.Unlock()
			}
			// Never fail the group: one account's error must not abort
			// the remaining candidates.
			return nil
		})
	}
	g.Wait()

	return failed
}

// reevaluateWithRetry retries once on a transient failure before giving
// the account up for this batch. A failed account keeps its previous
// tier until the next pass.
func (p *Propagator) reevaluateWithRetry(ctx context.Context, accountID, excludeTierID int64) error {
	err := p.reevaluate(ctx, accountID, excludeTierID)
	if err == nil {
		return nil
	}

	if p.metrics != nil {
		p.metrics.ResolutionRetriesTotal.Inc()
	}
	return p.reevaluate(ctx, accountID, excludeTierID)
}

// ReevaluateAccount re-resolves one account immediately, outside any
// trigger batch. Used by the reconciliation sweep.
func (p *Propagator) ReevaluateAccount(ctx context.Context, accountID int64) error {
	return p.reevaluateWithRetry(ctx, accountID, 0)
}

// reevaluate performs one serialized read-resolve-write for an account.
func (p *Propagator) reevaluate(ctx context.Context, accountID, excludeTierID int64) error {
	p.locks.Lock(accountID)
	defer p.locks.Unlock(accountID)

	start := time.Now()

	account, err := p.accounts.GetAccount(ctx, accountID)
	if err == accounts.ErrAccountNotFound {
		// Deleted mid-cascade; nothing to keep correct.
		return nil
	}
	if err != nil {
		p.observeResolution("error")
		return fmt.Errorf("failed to read account %d: %w", accountID, err)
	}

	target, err := p.resolveTarget(ctx, account, excludeTierID)
	if err != nil {
		p.observeResolution("error")
		return fmt.Errorf("failed to resolve account %d: %w", accountID, err)
	}

	if p.metrics != nil {
		p.metrics.ResolutionDuration.WithLabelValues("cascade").Observe(time.Since(start).Seconds())
	}

	if target.ID == account.CurrentTierID {
		p.observeResolution("unchanged")
		return nil
	}

	if err := p.accounts.SetCurrentTier(ctx, accountID, target.ID); err != nil {
		p.observeResolution("error")
		return fmt.Errorf("failed to write tier for account %d: %w", accountID, err)
	}
	p.observeResolution("changed")

	p.logger.WithFields(map[string]interface{}{
		"account_id": accountID,
		"old_tier":   account.CurrentTierID,
		"new_tier":   target.ID,
	}).Info("account tier changed")

	p.emit(ctx, &Event{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		OldTierID:  account.CurrentTierID,
		NewTierID:  target.ID,
		OccurredAt: time.Now(),
	})
	return nil
}

// resolveTarget picks the tier the account should hold. A deactivated
// account is force-assigned the fallback tier without running resolution.
func (p *Propagator) resolveTarget(ctx context.Context, account *accounts.Account, excludeTierID int64) (*tiers.Tier, error) {
	if !account.Active {
		return p.fallback.GetFallbackTier(ctx)
	}
	if excludeTierID != 0 {
		return p.resolver.ResolveForAccountExcluding(ctx, account, excludeTierID)
	}
	return p.resolver.ResolveForAccount(ctx, account)
}

func (p *Propagator) emit(ctx context.Context, event *Event) {
	if p.metrics != nil {
		p.metrics.TierChangedEventsTotal.Inc()
	}
	if p.sink != nil {
		p.sink.TierChanged(ctx, event)
	}
}

func (p *Propagator) observeResolution(outcome string) {
	if p.metrics != nil {
		p.metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
	}
}

// mergeIDs combines two candidate lists, dropping duplicates.
func mergeIDs(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	merged := make([]int64, 0, len(a)+len(b))
	for _, ids := range [][]int64{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}
