package ownership

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/tiers"
)

// Claim is an authenticated character identity presented to the ledger,
// typically produced by an SSO callback. AccountID is set when the
// claim was made from an existing session.
type Claim struct {
	CharacterID   int64
	CharacterName string
	OwnerHash     string
	AccountID     *int64
}

// CredentialSource answers whether an owner hash still has a usable
// credential. A live credential blocks supersede and revoke.
type CredentialSource interface {
	HasLiveCredential(ctx context.Context, ownerHash string) (bool, error)
}

// TriggerSink receives change notifications the cascade propagator
// should react to.
type TriggerSink interface {
	AccountPrimaryChanged(ctx context.Context, accountID int64) error
}

// Ledger coordinates ownership transitions: establishing bindings on
// login, superseding stale bindings when an owner hash changes hands,
// and revoking bindings on explicit request.
type Ledger struct {
	ownerships  *Store
	accounts    *accounts.Store
	tiers       tiers.TierSource
	credentials CredentialSource
	triggers    TriggerSink
}

// NewLedger creates an ownership ledger.
func NewLedger(ownerships *Store, accountStore *accounts.Store, tierSource tiers.TierSource, credentials CredentialSource, triggers TriggerSink) *Ledger {
	return &Ledger{
		ownerships:  ownerships,
		accounts:    accountStore,
		tiers:       tierSource,
		credentials: credentials,
		triggers:    triggers,
	}
}

// Establish processes an authenticated claim and returns the account
// the character is bound to afterwards.
//
// If the character already has a binding with the same owner hash the
// call is idempotent. If the hash differs the old binding is superseded
// unless its credential is still live, in which case
// ErrOwnershipConflict is returned.
func (l *Ledger) Establish(ctx context.Context, claim *Claim) (*accounts.Account, error) {
	if err := l.accounts.EnsureCharacter(ctx, claim.CharacterID, claim.CharacterName); err != nil {
		return nil, err
	}

	existing, err := l.ownerships.GetOwnership(ctx, claim.CharacterID)
	if err != nil && err != ErrOwnershipNotFound {
		return nil, err
	}

	if existing != nil {
		if existing.OwnerHash == claim.OwnerHash {
			return l.accounts.GetAccount(ctx, existing.AccountID)
		}
		if err := l.supersede(ctx, existing); err != nil {
			return nil, err
		}
	}

	account, err := l.resolveAccount(ctx, claim)
	if err != nil {
		return nil, err
	}

	if err := l.attach(ctx, claim, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Revoke removes the current binding for a character and records it in
// the historical ledger. A binding whose credential is still live
// cannot be revoked.
func (l *Ledger) Revoke(ctx context.Context, characterID int64) error {
	existing, err := l.ownerships.GetOwnership(ctx, characterID)
	if err != nil {
		return err
	}

	live, err := l.credentials.HasLiveCredential(ctx, existing.OwnerHash)
	if err != nil {
		return err
	}
	if live {
		return fmt.Errorf("revoke blocked: %w", ErrOwnershipConflict)
	}

	return l.detach(ctx, existing)
}

// supersede displaces an existing binding whose owner hash no longer
// matches the presented credentials.
func (l *Ledger) supersede(ctx context.Context, existing *Ownership) error {
	live, err := l.credentials.HasLiveCredential(ctx, existing.OwnerHash)
	if err != nil {
		return err
	}
	if live {
		return fmt.Errorf("supersede blocked: %w", ErrOwnershipConflict)
	}
	return l.detach(ctx, existing)
}

// detach records the binding historically, removes it, and clears the
// old account's primary character if it pointed at this character.
func (l *Ledger) detach(ctx context.Context, existing *Ownership) error {
	record := &Record{
		CharacterID: existing.CharacterID,
		AccountID:   existing.AccountID,
		OwnerHash:   existing.OwnerHash,
	}
	if err := l.ownerships.AppendRecord(ctx, record); err != nil {
		return err
	}
	if err := l.ownerships.DeleteOwnership(ctx, existing.CharacterID); err != nil {
		return err
	}
	return l.clearPrimaryIfHeld(ctx, existing.AccountID, existing.CharacterID)
}

// resolveAccount determines which account a claim should bind to: the
// claiming session's account, the account a returning identity
// previously held, or a fresh account.
func (l *Ledger) resolveAccount(ctx context.Context, claim *Claim) (*accounts.Account, error) {
	if claim.AccountID != nil {
		return l.accounts.GetAccount(ctx, *claim.AccountID)
	}

	record, err := l.ownerships.FindRecord(ctx, claim.OwnerHash, claim.CharacterID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		account, err := l.accounts.GetAccount(ctx, record.AccountID)
		if err == nil {
			return account, nil
		}
		if err != accounts.ErrAccountNotFound {
			return nil, err
		}
	}

	return l.createAccount(ctx, claim)
}

// createAccount provisions a new account on the fallback tier for a
// first-seen identity.
func (l *Ledger) createAccount(ctx context.Context, claim *Claim) (*accounts.Account, error) {
	fallback, err := l.tiers.GetFallbackTier(ctx)
	if err != nil {
		return nil, err
	}

	account := &accounts.Account{
		Username:      fmt.Sprintf("%s_%s", claim.CharacterName, uuid.NewString()[:8]),
		CurrentTierID: fallback.ID,
		Active:        false,
		PasswordLogin: false,
	}
	if err := l.accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// attach creates the current binding and promotes the character to
// primary if the account has none.
func (l *Ledger) attach(ctx context.Context, claim *Claim, account *accounts.Account) error {
	o := &Ownership{
		CharacterID: claim.CharacterID,
		AccountID:   account.ID,
		OwnerHash:   claim.OwnerHash,
	}
	if err := l.ownerships.CreateOwnership(ctx, o); err != nil {
		return err
	}

	if account.PrimaryCharacterID == nil {
		if err := l.accounts.SetPrimaryCharacter(ctx, account.ID, &claim.CharacterID); err != nil {
			return err
		}
		account.PrimaryCharacterID = &claim.CharacterID
		if l.triggers != nil {
			if err := l.triggers.AccountPrimaryChanged(ctx, account.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// clearPrimaryIfHeld clears an account's primary character when the
// detached character was its primary, and notifies the trigger sink so
// the account's tier can be re-evaluated.
func (l *Ledger) clearPrimaryIfHeld(ctx context.Context, accountID, characterID int64) error {
	account, err := l.accounts.GetAccount(ctx, accountID)
	if err == accounts.ErrAccountNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	if account.PrimaryCharacterID == nil || *account.PrimaryCharacterID != characterID {
		return nil
	}

	if err := l.accounts.SetPrimaryCharacter(ctx, accountID, nil); err != nil {
		return err
	}
	if l.triggers != nil {
		return l.triggers.AccountPrimaryChanged(ctx, accountID)
	}
	return nil
}

// IsOwnedBy reports whether the character is currently bound to the
// account. Satisfies the resolver's ownership check.
func (l *Ledger) IsOwnedBy(ctx context.Context, characterID, accountID int64) (bool, error) {
	return l.ownerships.IsOwnedBy(ctx, characterID, accountID)
}
