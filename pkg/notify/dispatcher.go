package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/async"
	"github.com/stationauth/stationauth/pkg/cascade"
	"github.com/stationauth/stationauth/pkg/observability"
)

// AccountSource provides account lookups for deliveries.
type AccountSource interface {
	GetAccount(ctx context.Context, accountID int64) (*accounts.Account, error)
}

// Dispatcher fans events out to the enabled services. It satisfies the
// cascade engine's event sink; every delivery runs in its own goroutine
// so a slow or failing service never blocks propagation.
type Dispatcher struct {
	registry *Registry
	accounts AccountSource
	policy   *RetryPolicy
	logger   *observability.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher. The timeout bounds one delivery
// including all its retries; metrics may be nil in tests.
func NewDispatcher(registry *Registry, accountSource AccountSource, policy *RetryPolicy, logger *observability.Logger, metrics *observability.Metrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Dispatcher{
		registry: registry,
		accounts: accountSource,
		policy:   policy,
		logger:   logger,
		metrics:  metrics,
		timeout:  timeout,
	}
}

// TierChanged dispatches a tier change to every enabled service.
// Fire-and-forget: deliveries detach from the caller's context so a
// finished cascade does not cancel them.
func (d *Dispatcher) TierChanged(ctx context.Context, event *cascade.Event) {
	account, err := d.accounts.GetAccount(ctx, event.AccountID)
	if err != nil {
		d.logger.WithError(err).
			WithField("account_id", event.AccountID).
			Error("cannot load account for notification")
		return
	}

	for _, service := range d.registry.Enabled() {
		service := service
		taskName := fmt.Sprintf("notify %s", service.Name())
		async.SafeGo(context.Background(), d.timeout, taskName, func(ctx context.Context) error {
			return d.deliver(ctx, service, func(ctx context.Context) error {
				if err := service.TierChanged(ctx, event); err != nil {
					return err
				}
				return service.Validate(ctx, account)
			})
		})
	}
}

// AccountChanged asks every enabled service to re-validate an account
// whose active flag or permission set changed without a tier change.
func (d *Dispatcher) AccountChanged(ctx context.Context, accountID int64) {
	account, err := d.accounts.GetAccount(ctx, accountID)
	if err != nil {
		d.logger.WithError(err).
			WithField("account_id", accountID).
			Error("cannot load account for notification")
		return
	}

	for _, service := range d.registry.Enabled() {
		service := service
		taskName := fmt.Sprintf("validate %s", service.Name())
		async.SafeGo(context.Background(), d.timeout, taskName, func(ctx context.Context) error {
			return d.deliver(ctx, service, func(ctx context.Context) error {
				return service.Validate(ctx, account)
			})
		})
	}
}

// deliver runs one delivery with exponential backoff until it succeeds,
// the policy gives up, or the context expires.
func (d *Dispatcher) deliver(ctx context.Context, service Service, fn func(context.Context) error) error {
	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if err == nil {
			if d.metrics != nil {
				d.metrics.NotificationsTotal.WithLabelValues(service.Name(), "success").Inc()
			}
			return nil
		}

		if !d.policy.ShouldRetry(attempts, err) {
			if d.metrics != nil {
				d.metrics.NotificationsTotal.WithLabelValues(service.Name(), "failed").Inc()
			}
			d.logger.WithError(err).
				WithField("service", service.Name()).
				WithField("attempts", attempts).
				Error("notification delivery gave up")
			return fmt.Errorf("delivery to %s failed after %d attempts: %w", service.Name(), attempts, err)
		}

		if d.metrics != nil {
			d.metrics.NotificationRetriesTotal.Inc()
		}
		d.logger.WithError(err).
			WithField("service", service.Name()).
			WithField("attempt", attempts).
			Warn("notification delivery failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.policy.NextRetryDelay(attempts)):
		}
	}
}
