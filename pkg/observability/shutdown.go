package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager coordinates graceful shutdown. The HTTP server stops
// first so no new work arrives, then the registered hooks run in
// reverse registration order: register dependencies before the things
// that use them and they are torn down last.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	hooks           []shutdownHook
	shutdownTimeout time.Duration
	mu              sync.Mutex
}

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type shutdownHook struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownTimeout: timeout,
	}
}

// RegisterShutdownFunc registers a named hook to call during shutdown
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, shutdownHook{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs the shutdown
// sequence under the configured timeout.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	return sm.Shutdown(ctx)
}

// Shutdown runs the shutdown sequence immediately. Exposed separately
// from WaitForShutdown so tests and embedded callers can drive it
// without delivering a signal.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.logger.Info("HTTP server shutdown complete")
	}

	sm.mu.Lock()
	hooks := make([]shutdownHook, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.mu.Unlock()

	var failed []string
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]

		if ctx.Err() != nil {
			sm.logger.Warnf("Shutdown timeout reached before %s stopped", hook.name)
			return fmt.Errorf("shutdown timeout reached")
		}

		sm.logger.Infof("Stopping %s", hook.name)
		if err := hook.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Stopping %s failed", hook.name)
			failed = append(failed, hook.name)
			continue
		}
		sm.logger.Infof("Stopped %s", hook.name)
	}

	if len(failed) > 0 {
		return fmt.Errorf("shutdown completed with %d failed hooks: %v", len(failed), failed)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
