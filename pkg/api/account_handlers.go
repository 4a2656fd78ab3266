package api

import (
	"net/http"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/httputil"
)

// getAccount handles GET /api/v1/accounts/{id}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	account, err := s.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		if err == accounts.ErrAccountNotFound {
			httputil.WriteNotFoundError(w, "account not found")
			return
		}
		s.logger.Errorf("Failed to get account: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, account)
}

// ResolutionPreview is the read-only resolution result for an account
type ResolutionPreview struct {
	AccountID     int64  `json:"account_id"`
	CurrentTierID int64  `json:"current_tier_id"`
	ResolvedTier  string `json:"resolved_tier"`
	ResolvedID    int64  `json:"resolved_tier_id"`
	WouldChange   bool   `json:"would_change"`
}

// previewResolution handles GET /api/v1/accounts/{id}/resolution. It
// never writes; the UI uses it to show what the next cascade would do.
func (s *Server) previewResolution(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	account, err := s.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		if err == accounts.ErrAccountNotFound {
			httputil.WriteNotFoundError(w, "account not found")
			return
		}
		s.logger.Errorf("Failed to get account: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	resolved, err := s.resolver.ResolveForAccount(r.Context(), account)
	if err != nil {
		s.logger.Errorf("Failed to resolve account %d: %v", accountID, err)
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, ResolutionPreview{
		AccountID:     account.ID,
		CurrentTierID: account.CurrentTierID,
		ResolvedTier:  resolved.Name,
		ResolvedID:    resolved.ID,
		WouldChange:   resolved.ID != account.CurrentTierID,
	})
}

// SetActiveRequest contains the request body for flipping the active flag
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// setAccountActive handles PUT /api/v1/accounts/{id}/active
func (s *Server) setAccountActive(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req SetActiveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.accounts.SetActive(r.Context(), accountID, req.Active); err != nil {
		if err == accounts.ErrAccountNotFound {
			httputil.WriteNotFoundError(w, "account not found")
			return
		}
		s.logger.Errorf("Failed to set active flag: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	if err := s.propagator.AccountActiveChanged(r.Context(), accountID); err != nil {
		s.logger.Errorf("Failed to enqueue cascade for account %d: %v", accountID, err)
	}

	// Dependent services re-validate on every active flip, even when
	// the tier ends up unchanged.
	if s.dispatcher != nil {
		s.dispatcher.AccountChanged(r.Context(), accountID)
	}

	httputil.WriteNoContent(w)
}

// SetPrimaryRequest contains the request body for assigning the primary
// character; a null character_id clears it
type SetPrimaryRequest struct {
	CharacterID *int64 `json:"character_id"`
}

// setPrimaryCharacter handles PUT /api/v1/accounts/{id}/primary
func (s *Server) setPrimaryCharacter(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req SetPrimaryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.CharacterID != nil {
		owned, err := s.ownerships.IsOwnedBy(r.Context(), *req.CharacterID, accountID)
		if err != nil {
			s.logger.Errorf("Failed to check ownership: %v", err)
			httputil.WriteInternalError(w, err)
			return
		}
		if !owned {
			httputil.WriteConflict(w, "account does not own this character")
			return
		}
	}

	if err := s.accounts.SetPrimaryCharacter(r.Context(), accountID, req.CharacterID); err != nil {
		if err == accounts.ErrAccountNotFound {
			httputil.WriteNotFoundError(w, "account not found")
			return
		}
		s.logger.Errorf("Failed to set primary character: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	if err := s.propagator.AccountPrimaryChanged(r.Context(), accountID); err != nil {
		s.logger.Errorf("Failed to enqueue cascade for account %d: %v", accountID, err)
	}

	httputil.WriteNoContent(w)
}

// AffiliationRequest contains refreshed character affiliation data
type AffiliationRequest struct {
	Name          string `json:"name"`
	CorporationID int64  `json:"corporation_id"`
	AllianceID    *int64 `json:"alliance_id"`
}

// refreshAffiliation handles PUT /api/v1/characters/{id}/affiliation
func (s *Server) refreshAffiliation(w http.ResponseWriter, r *http.Request) {
	characterID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req AffiliationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	ch := &accounts.Character{
		ID:            characterID,
		Name:          req.Name,
		CorporationID: req.CorporationID,
		AllianceID:    req.AllianceID,
	}
	if err := s.accounts.UpsertCharacter(r.Context(), ch); err != nil {
		s.logger.Errorf("Failed to upsert character: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	if err := s.propagator.CharacterAffiliationChanged(r.Context(), characterID); err != nil {
		s.logger.Errorf("Failed to enqueue cascade for character %d: %v", characterID, err)
	}

	httputil.WriteSuccess(w, ch)
}
