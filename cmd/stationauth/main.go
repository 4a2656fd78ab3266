package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/api"
	"github.com/stationauth/stationauth/pkg/cascade"
	"github.com/stationauth/stationauth/pkg/config"
	"github.com/stationauth/stationauth/pkg/notify"
	"github.com/stationauth/stationauth/pkg/observability"
	"github.com/stationauth/stationauth/pkg/ownership"
	"github.com/stationauth/stationauth/pkg/sso"
	"github.com/stationauth/stationauth/pkg/tiers"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	httpLogger := logrus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Stores
	tierStore := tiers.NewStore(db)
	accountStore := accounts.NewStore(db)
	ownershipStore := ownership.NewStore(db)
	credentialStore := sso.NewCredentialStore(db)

	var tierSource api.TierStore = tierStore
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		tierSource = tiers.NewCachedStoreWithClient(tierStore, redisClient, cfg.Redis.CacheTTL)
		logger.Info("Tier registry cache enabled")
	}

	if err := ensureFallbackTier(ctx, tierSource); err != nil {
		log.Fatalf("Failed to ensure fallback tier: %v", err)
	}

	// Resolution
	registry := tiers.NewRegistry(tierSource)
	resolver := tiers.NewResolver(registry, accountStore, ownershipStore)

	// Metrics
	var metrics *observability.Metrics
	promRegistry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
	}

	// Dependent notifier
	notifyRegistry := notify.NewRegistry()
	retryPolicy := notify.NewRetryPolicy(notify.RetryConfig{
		MaxAttempts:  cfg.Notify.MaxAttempts,
		InitialDelay: cfg.Notify.InitialDelay,
	})
	dispatcher := notify.NewDispatcher(notifyRegistry, accountStore, retryPolicy, logger, metrics, cfg.Notify.DeliveryTimeout)

	if cfg.Notify.ForumURL != "" {
		forumClient := notify.NewHTTPGroupClient(cfg.Notify.ForumURL, cfg.Notify.ForumToken)
		notifyRegistry.Register(notify.NewForumService(forumClient, accountStore, tierStore))
	}

	if cfg.Notify.ConfigPath != "" {
		go func() {
			if err := notify.WatchConfig(ctx, cfg.Notify.ConfigPath, notifyRegistry, logger); err != nil {
				logger.WithError(err).Error("notify config watcher stopped")
			}
		}()
	}

	// Cascade propagator
	propagator := cascade.NewPropagator(accountStore, resolver, tierSource, dispatcher, logger, metrics, cascade.Config{
		Workers:      cfg.Cascade.Workers,
		QueueSize:    cfg.Cascade.QueueSize,
		BatchWorkers: cfg.Cascade.BatchWorkers,
	})
	propagator.Start(ctx)

	// Ownership ledger
	ledger := ownership.NewLedger(ownershipStore, accountStore, tierSource, credentialStore, propagator)

	// SSO
	var authHandlers *api.AuthHandlers
	if cfg.SSO.Enabled {
		provider, err := sso.NewProvider(ctx, &sso.Config{
			IssuerURL:    cfg.SSO.IssuerURL,
			ClientID:     cfg.SSO.ClientID,
			ClientSecret: cfg.SSO.ClientSecret,
			RedirectURL:  cfg.SSO.RedirectURL,
			Scopes:       cfg.SSO.Scopes,
		})
		if err != nil {
			log.Fatalf("Failed to initialize SSO provider: %v", err)
		}
		authenticator := sso.NewAuthenticator(provider, credentialStore, ledger)
		authHandlers = api.NewAuthHandlers(provider, authenticator, httpLogger)
	}

	// API server
	server := api.NewServer(tierSource, accountStore, ownershipStore, resolver, propagator, dispatcher, authHandlers, httpLogger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on the probe port
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("stationauth listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("cascade propagator", func(ctx context.Context) error {
		cancel()
		propagator.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc("health server", func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

// runMigrations applies the schema for every store. Tiers first: the
// accounts table references it.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if err := tiers.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := accounts.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := ownership.RunMigrations(ctx, db); err != nil {
		return err
	}
	return sso.RunMigrations(ctx, db)
}

// ensureFallbackTier seeds the reserved fallback tier on first boot.
func ensureFallbackTier(ctx context.Context, store api.TierStore) error {
	_, err := store.GetFallbackTier(ctx)
	if err == nil {
		return nil
	}
	if err != tiers.ErrTierNotFound {
		return err
	}

	fallback := &tiers.Tier{
		Name:     "Guest",
		Priority: 0,
		IsPublic: true,
	}
	if err := store.CreateTier(ctx, fallback); err != nil {
		return fmt.Errorf("failed to create fallback tier: %w", err)
	}
	return nil
}
