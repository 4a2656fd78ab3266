package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/cascade"
	"github.com/stationauth/stationauth/pkg/httputil"
	"github.com/stationauth/stationauth/pkg/notify"
	"github.com/stationauth/stationauth/pkg/ownership"
	"github.com/stationauth/stationauth/pkg/tiers"
)

// TierStore is the tier registry surface the handlers need. Both the
// SQL store and its Redis-cached variant satisfy it.
type TierStore interface {
	CreateTier(ctx context.Context, tier *tiers.Tier) error
	GetTier(ctx context.Context, tierID int64) (*tiers.Tier, error)
	GetTierByName(ctx context.Context, name string) (*tiers.Tier, error)
	ListTiers(ctx context.Context) ([]*tiers.Tier, error)
	UpdateTier(ctx context.Context, tier *tiers.Tier) error
	DeleteTier(ctx context.Context, tierID int64) error
	GetFallbackTier(ctx context.Context) (*tiers.Tier, error)
}

// Server represents the API server
type Server struct {
	router     *mux.Router
	tiers      TierStore
	accounts   *accounts.Store
	ownerships *ownership.Store
	resolver   *tiers.Resolver
	propagator *cascade.Propagator
	dispatcher *notify.Dispatcher
	auth       *AuthHandlers
	logger     *logrus.Logger
}

// NewServer creates the API server. The auth handlers may be nil when
// SSO is not configured (tests, offline tooling).
func NewServer(tierStore TierStore, accountStore *accounts.Store, ownershipStore *ownership.Store, resolver *tiers.Resolver, propagator *cascade.Propagator, dispatcher *notify.Dispatcher, auth *AuthHandlers, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		tiers:      tierStore,
		accounts:   accountStore,
		ownerships: ownershipStore,
		resolver:   resolver,
		propagator: propagator,
		dispatcher: dispatcher,
		auth:       auth,
		logger:     logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Tier routes
	s.router.HandleFunc("/api/v1/tiers", s.createTier).Methods("POST")
	s.router.HandleFunc("/api/v1/tiers", s.listTiers).Methods("GET")
	s.router.HandleFunc("/api/v1/tiers/{name}", s.getTier).Methods("GET")
	s.router.HandleFunc("/api/v1/tiers/{id:[0-9]+}", s.updateTier).Methods("PUT")
	s.router.HandleFunc("/api/v1/tiers/{id:[0-9]+}", s.deleteTier).Methods("DELETE")
	s.router.HandleFunc("/api/v1/tiers/{name}/accounts", s.listTierAccounts).Methods("GET")

	// Account routes
	s.router.HandleFunc("/api/v1/accounts/{id:[0-9]+}", s.getAccount).Methods("GET")
	s.router.HandleFunc("/api/v1/accounts/{id:[0-9]+}/resolution", s.previewResolution).Methods("GET")
	s.router.HandleFunc("/api/v1/accounts/{id:[0-9]+}/active", s.setAccountActive).Methods("PUT")
	s.router.HandleFunc("/api/v1/accounts/{id:[0-9]+}/primary", s.setPrimaryCharacter).Methods("PUT")

	// Character affiliation intake
	s.router.HandleFunc("/api/v1/characters/{id:[0-9]+}/affiliation", s.refreshAffiliation).Methods("PUT")

	// SSO routes
	if s.auth != nil {
		s.auth.RegisterRoutes(s.router)
	}
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.MaxBytesMiddleware(1024*1024),
	)(s.router)
}

// Router returns the raw router, used by tests.
func (s *Server) Router() *mux.Router {
	return s.router
}
