package sso

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Config configures the OIDC provider.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Validate checks the provider configuration.
func (c *Config) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	return nil
}

// VerifiedToken is the identity a verified SSO token attests to.
type VerifiedToken struct {
	CharacterID   int64
	CharacterName string
	OwnerHash     string
	RefreshToken  string
}

// Provider verifies game SSO tokens via OpenID Connect.
type Provider struct {
	config       *Config
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewProvider discovers the OIDC issuer and creates a provider.
func NewProvider(ctx context.Context, config *Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	oauth2Config := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  config.RedirectURL,
		Scopes:       config.Scopes,
	}

	return &Provider{
		config:       config,
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

// InitiateLogin redirects to the SSO authorization endpoint.
func (p *Provider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) {
	authURL := p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback exchanges the authorization code and verifies the ID
// token, returning the character identity claims.
func (p *Provider) HandleCallback(ctx context.Context, r *http.Request) (*VerifiedToken, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	token, err := parseClaims(idToken)
	if err != nil {
		return nil, err
	}
	token.RefreshToken = oauth2Token.RefreshToken
	return token, nil
}

// parseClaims extracts the character identity from a verified ID token.
// The subject carries the character ID as "CHARACTER:EVE:<id>".
func parseClaims(idToken *oidc.IDToken) (*VerifiedToken, error) {
	var claims struct {
		Name  string `json:"name"`
		Owner string `json:"owner"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	characterID, err := characterIDFromSubject(idToken.Subject)
	if err != nil {
		return nil, err
	}
	if claims.Name == "" {
		return nil, fmt.Errorf("missing character name in token")
	}
	if claims.Owner == "" {
		return nil, fmt.Errorf("missing owner hash in token")
	}

	return &VerifiedToken{
		CharacterID:   characterID,
		CharacterName: claims.Name,
		OwnerHash:     claims.Owner,
	}, nil
}

func characterIDFromSubject(subject string) (int64, error) {
	idx := strings.LastIndex(subject, ":")
	if idx < 0 || idx == len(subject)-1 {
		return 0, fmt.Errorf("malformed token subject %q", subject)
	}

	id, err := strconv.ParseInt(subject[idx+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed character id in subject %q: %w", subject, err)
	}
	return id, nil
}
