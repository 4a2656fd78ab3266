package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/stationauth/stationauth/pkg/httputil"
	"github.com/stationauth/stationauth/pkg/ownership"
	"github.com/stationauth/stationauth/pkg/sso"
)

const stateCookieName = "sso_state"

// AuthHandlers handles the SSO login flow and credential removal
type AuthHandlers struct {
	provider      *sso.Provider
	authenticator *sso.Authenticator
	logger        *logrus.Logger
}

// NewAuthHandlers creates the auth handlers
func NewAuthHandlers(provider *sso.Provider, authenticator *sso.Authenticator, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		provider:      provider,
		authenticator: authenticator,
		logger:        logger,
	}
}

// RegisterRoutes registers SSO routes
func (h *AuthHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/sso/login", h.login).Methods("GET")
	r.HandleFunc("/auth/sso/callback", h.callback).Methods("GET")
	r.HandleFunc("/api/v1/credentials/{id:[0-9]+}", h.removeCredential).Methods("DELETE")
}

// login handles GET /auth/sso/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		h.logger.Errorf("Failed to generate state: %v", err)
		httputil.WriteInternalError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/sso",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	h.provider.InitiateLogin(w, r, state)
}

// callback handles GET /auth/sso/callback
func (h *AuthHandlers) callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		httputil.WriteUnauthorized(w, "state mismatch")
		return
	}

	token, err := h.provider.HandleCallback(r.Context(), r)
	if err != nil {
		h.logger.Errorf("SSO callback failed: %v", err)
		httputil.WriteUnauthorized(w, "token verification failed")
		return
	}

	account, err := h.authenticator.Redeem(r.Context(), token, nil)
	if err != nil {
		if errors.Is(err, ownership.ErrOwnershipConflict) {
			httputil.WriteConflict(w, "character is owned by another live credential")
			return
		}
		h.logger.Errorf("Failed to establish ownership for character %d: %v", token.CharacterID, err)
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, account)
}

// removeCredential handles DELETE /api/v1/credentials/{id}
func (h *AuthHandlers) removeCredential(w http.ResponseWriter, r *http.Request) {
	credentialID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.authenticator.RemoveCredential(r.Context(), credentialID); err != nil {
		h.logger.Errorf("Failed to remove credential %d: %v", credentialID, err)
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
