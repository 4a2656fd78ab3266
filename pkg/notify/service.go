package notify

import (
	"context"
	"sync"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/cascade"
)

// Service is the contract a dependent external service implements. The
// engine assumes nothing beyond "safe to call repeatedly": the service
// decides whether to keep, create, or tear down its remote account.
type Service interface {
	// Name identifies the service in config and logs.
	Name() string

	// Validate is invoked whenever an account's tier, active flag, or
	// permission set changed.
	Validate(ctx context.Context, account *accounts.Account) error

	// TierChanged is invoked with the concrete old/new tier transition.
	TierChanged(ctx context.Context, event *cascade.Event) error
}

// Registry holds the registered services and the enabled subset. All
// services register at startup; the enabled set can change at runtime
// via config reload.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
	enabled  map[string]bool
}

// NewRegistry creates an empty service registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]Service),
		enabled:  make(map[string]bool),
	}
}

// Register adds a service. Registered services are disabled until the
// config enables them.
func (r *Registry) Register(service Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[service.Name()] = service
}

// SetEnabled replaces the enabled set.
func (r *Registry) SetEnabled(names []string) {
	enabled := make(map[string]bool, len(names))
	for _, name := range names {
		enabled[name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Enabled returns the currently enabled services.
func (r *Registry) Enabled() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Service
	for name, service := range r.services {
		if r.enabled[name] {
			result = append(result, service)
		}
	}
	return result
}
