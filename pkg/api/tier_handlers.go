package api

import (
	"net/http"

	"github.com/stationauth/stationauth/pkg/httputil"
	"github.com/stationauth/stationauth/pkg/tiers"
)

// TierRequest contains the request body for creating or updating a tier
type TierRequest struct {
	Name                string  `json:"name"`
	Priority            int     `json:"priority"`
	IsPublic            bool    `json:"is_public"`
	MemberCharacters    []int64 `json:"member_characters"`
	MemberCorporations  []int64 `json:"member_corporations"`
	MemberAlliances     []int64 `json:"member_alliances"`
}

// createTier handles POST /api/v1/tiers
func (s *Server) createTier(w http.ResponseWriter, r *http.Request) {
	var req TierRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	tier := &tiers.Tier{
		Name:               req.Name,
		Priority:           req.Priority,
		IsPublic:           req.IsPublic,
		MemberCharacters:   req.MemberCharacters,
		MemberCorporations: req.MemberCorporations,
		MemberAlliances:    req.MemberAlliances,
	}

	if err := s.tiers.CreateTier(r.Context(), tier); err != nil {
		switch err {
		case tiers.ErrDuplicatePriority:
			httputil.WriteConflict(w, "a tier with this priority already exists")
		case tiers.ErrDuplicateName:
			httputil.WriteConflict(w, "a tier with this name already exists")
		case tiers.ErrFallbackProtected:
			httputil.WriteConflict(w, "priority cannot be below the fallback tier")
		default:
			s.logger.Errorf("Failed to create tier: %v", err)
			httputil.WriteInternalError(w, err)
		}
		return
	}

	// A new tier can outrank any existing assignment; the full scan
	// runs in the background, never inline with this request.
	if err := s.propagator.TierUpserted(r.Context()); err != nil {
		s.logger.Errorf("Failed to enqueue cascade for tier %d: %v", tier.ID, err)
	}

	httputil.WriteCreated(w, tier)
}

// listTiers handles GET /api/v1/tiers
func (s *Server) listTiers(w http.ResponseWriter, r *http.Request) {
	result, err := s.tiers.ListTiers(r.Context())
	if err != nil {
		s.logger.Errorf("Failed to list tiers: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getTier handles GET /api/v1/tiers/{name}
func (s *Server) getTier(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	tier, err := s.tiers.GetTierByName(r.Context(), name)
	if err != nil {
		if err == tiers.ErrTierNotFound {
			httputil.WriteNotFoundError(w, "tier not found")
			return
		}
		s.logger.Errorf("Failed to get tier: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, tier)
}

// updateTier handles PUT /api/v1/tiers/{id}
func (s *Server) updateTier(w http.ResponseWriter, r *http.Request) {
	tierID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	existing, err := s.tiers.GetTier(r.Context(), tierID)
	if err != nil {
		if err == tiers.ErrTierNotFound {
			httputil.WriteNotFoundError(w, "tier not found")
			return
		}
		s.logger.Errorf("Failed to get tier: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	var req TierRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	tier := &tiers.Tier{
		ID:                 tierID,
		Name:               req.Name,
		Priority:           req.Priority,
		IsPublic:           req.IsPublic,
		MemberCharacters:   req.MemberCharacters,
		MemberCorporations: req.MemberCorporations,
		MemberAlliances:    req.MemberAlliances,
	}

	if err := s.tiers.UpdateTier(r.Context(), tier); err != nil {
		switch err {
		case tiers.ErrDuplicatePriority:
			httputil.WriteConflict(w, "a tier with this priority already exists")
		case tiers.ErrDuplicateName:
			httputil.WriteConflict(w, "a tier with this name already exists")
		case tiers.ErrFallbackProtected:
			httputil.WriteConflict(w, "the change would alter or undercut the fallback tier")
		default:
			s.logger.Errorf("Failed to update tier: %v", err)
			httputil.WriteInternalError(w, err)
		}
		return
	}

	// A priority or visibility change can reorder every assignment; a
	// pure membership edit only affects this tier's holders and the
	// promotion candidates below it.
	var enqueueErr error
	if existing.Priority != tier.Priority || existing.IsPublic != tier.IsPublic {
		enqueueErr = s.propagator.TierUpserted(r.Context())
	} else {
		enqueueErr = s.propagator.TierMembershipEdited(r.Context(), tierID, tier.Priority)
	}
	if enqueueErr != nil {
		s.logger.Errorf("Failed to enqueue cascade for tier %d: %v", tierID, enqueueErr)
	}

	httputil.WriteSuccess(w, tier)
}

// deleteTier handles DELETE /api/v1/tiers/{id}. Holders are reassigned
// before the row is removed.
func (s *Server) deleteTier(w http.ResponseWriter, r *http.Request) {
	tierID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	tier, err := s.tiers.GetTier(r.Context(), tierID)
	if err != nil {
		if err == tiers.ErrTierNotFound {
			httputil.WriteNotFoundError(w, "tier not found")
			return
		}
		s.logger.Errorf("Failed to get tier: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	fallback, err := s.tiers.GetFallbackTier(r.Context())
	if err != nil {
		s.logger.Errorf("Failed to get fallback tier: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}
	if tier.ID == fallback.ID {
		httputil.WriteConflict(w, "the fallback tier cannot be deleted")
		return
	}

	if err := s.propagator.PropagateTierDeleted(r.Context(), tierID); err != nil {
		s.logger.Errorf("Failed to reassign holders of tier %d: %v", tierID, err)
		httputil.WriteInternalError(w, err)
		return
	}

	if err := s.tiers.DeleteTier(r.Context(), tierID); err != nil {
		if err == tiers.ErrFallbackProtected {
			httputil.WriteConflict(w, "the fallback tier cannot be deleted")
			return
		}
		s.logger.Errorf("Failed to delete tier: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// listTierAccounts handles GET /api/v1/tiers/{name}/accounts
func (s *Server) listTierAccounts(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	tier, err := s.tiers.GetTierByName(r.Context(), name)
	if err != nil {
		if err == tiers.ErrTierNotFound {
			httputil.WriteNotFoundError(w, "tier not found")
			return
		}
		s.logger.Errorf("Failed to get tier: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	result, err := s.accounts.ListAccountsInTier(r.Context(), tier.ID)
	if err != nil {
		s.logger.Errorf("Failed to list accounts in tier %d: %v", tier.ID, err)
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}
