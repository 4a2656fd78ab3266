package sso

import (
	"context"
	"fmt"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/ownership"
)

// Authenticator wires token verification into the ownership ledger: a
// verified token establishes ownership and stores the credential, and a
// credential removal revokes ownership once no sibling credential shares
// its owner hash.
type Authenticator struct {
	provider    *Provider
	credentials *CredentialStore
	ledger      *ownership.Ledger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(provider *Provider, credentials *CredentialStore, ledger *ownership.Ledger) *Authenticator {
	return &Authenticator{
		provider:    provider,
		credentials: credentials,
		ledger:      ledger,
	}
}

// Redeem processes a verified token: establishes or reconnects ownership
// and stores the live credential. sessionAccountID is set when the token
// was redeemed from an already-linked session.
func (a *Authenticator) Redeem(ctx context.Context, token *VerifiedToken, sessionAccountID *int64) (*accounts.Account, error) {
	account, err := a.ledger.Establish(ctx, &ownership.Claim{
		CharacterID:   token.CharacterID,
		CharacterName: token.CharacterName,
		OwnerHash:     token.OwnerHash,
		AccountID:     sessionAccountID,
	})
	if err != nil {
		return nil, err
	}

	credential := &Credential{
		AccountID:    account.ID,
		CharacterID:  token.CharacterID,
		OwnerHash:    token.OwnerHash,
		RefreshToken: token.RefreshToken,
	}
	if err := a.credentials.AddCredential(ctx, credential); err != nil {
		return nil, err
	}

	return account, nil
}

// RemoveCredential deletes a credential and revokes the character's
// ownership when no other live credential shares its owner hash.
func (a *Authenticator) RemoveCredential(ctx context.Context, credentialID int64) error {
	credential, err := a.credentials.RemoveCredential(ctx, credentialID)
	if err != nil {
		return err
	}

	live, err := a.credentials.HasLiveCredential(ctx, credential.OwnerHash)
	if err != nil {
		return err
	}
	if live {
		return nil
	}

	if err := a.ledger.Revoke(ctx, credential.CharacterID); err != nil {
		if err == ownership.ErrOwnershipNotFound {
			return nil
		}
		return fmt.Errorf("failed to revoke ownership for character %d: %w", credential.CharacterID, err)
	}
	return nil
}
