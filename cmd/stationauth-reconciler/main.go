package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/stationauth/stationauth/pkg/accounts"
	"github.com/stationauth/stationauth/pkg/cascade"
	"github.com/stationauth/stationauth/pkg/observability"
	"github.com/stationauth/stationauth/pkg/ownership"
	"github.com/stationauth/stationauth/pkg/tiers"
)

var (
	dbURL            = flag.String("db-url", getEnv("STATIONAUTH_DATABASE_URL", "postgres://localhost/stationauth?sslmode=disable"), "PostgreSQL connection URL")
	sweepSchedule    = flag.String("sweep-schedule", "15 * * * *", "Cron schedule for the full resolution sweep (default: hourly at :15)")
	staleCutoff      = flag.Duration("stale-cutoff", 24*time.Hour, "Characters not refreshed within this window get an affiliation re-check")
	refreshSchedule  = flag.String("refresh-schedule", "45 */6 * * *", "Cron schedule for the stale affiliation re-check (default: every 6 hours at :45)")
	batchWorkers     = flag.Int("batch-workers", 8, "Concurrent account re-evaluations during a sweep")
	runOnce          = flag.Bool("run-once", false, "Run one sweep and exit (for testing)")
)

func main() {
	flag.Parse()

	logger := observability.NewLogger(observability.ParseLogLevel(getEnv("STATIONAUTH_LOG_LEVEL", "info")), os.Stdout)

	// Connect to database
	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Verify connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	tierStore := tiers.NewStore(db)
	accountStore := accounts.NewStore(db)
	ownershipStore := ownership.NewStore(db)

	registry := tiers.NewRegistry(tierStore)
	resolver := tiers.NewResolver(registry, accountStore, ownershipStore)

	// The reconciler re-evaluates accounts directly instead of feeding
	// the trigger queue, so the propagator is never started.
	propagator := cascade.NewPropagator(accountStore, resolver, tierStore, logSink{logger}, logger, nil, cascade.Config{
		BatchWorkers: *batchWorkers,
	})

	// Run once mode (for testing or manual repair)
	if *runOnce {
		if err := runSweep(accountStore, propagator, logger); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		log.Println("Sweep completed successfully")
		return
	}

	// Scheduled mode
	c := cron.New()

	_, err = c.AddFunc(*sweepSchedule, func() {
		log.Println("Starting full resolution sweep")
		if err := runSweep(accountStore, propagator, logger); err != nil {
			log.Printf("Resolution sweep failed: %v", err)
		} else {
			log.Println("Resolution sweep completed successfully")
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule resolution sweep: %v", err)
	}

	_, err = c.AddFunc(*refreshSchedule, func() {
		log.Println("Re-checking stale character affiliations")
		if err := runStaleCheck(accountStore, propagator, *staleCutoff, logger); err != nil {
			log.Printf("Stale affiliation check failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule stale affiliation check: %v", err)
	}

	c.Start()
	log.Println("StationAuth reconciler started")
	log.Printf("Resolution sweep schedule: %s", *sweepSchedule)
	log.Printf("Stale affiliation schedule: %s", *refreshSchedule)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Reconciler stopped")
}

// runSweep re-evaluates every account. Failures are logged per account
// and do not stop the rest of the sweep.
func runSweep(store *accounts.Store, propagator *cascade.Propagator, logger *observability.Logger) error {
	ctx := context.Background()

	ids, err := store.ListAllAccountIDs(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, id := range ids {
		if err := propagator.ReevaluateAccount(ctx, id); err != nil {
			logger.WithField("account_id", id).WithError(err).Warn("sweep re-evaluation failed")
			failed++
		}
	}

	logger.WithFields(map[string]interface{}{
		"accounts": len(ids),
		"failed":   failed,
	}).Info("resolution sweep finished")
	return nil
}

// runStaleCheck re-evaluates accounts whose primary character has not
// had its corporation and alliance refreshed recently. The portal's
// upstream sync writes the character rows; this only replays the
// resolution side.
func runStaleCheck(store *accounts.Store, propagator *cascade.Propagator, cutoff time.Duration, logger *observability.Logger) error {
	ctx := context.Background()

	ids, err := store.ListAccountIDsWithStaleCharacters(ctx, time.Now().Add(-cutoff))
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := propagator.ReevaluateAccount(ctx, id); err != nil {
			logger.WithField("account_id", id).WithError(err).Warn("stale re-evaluation failed")
		}
	}

	logger.WithField("accounts", len(ids)).Info("stale affiliation check finished")
	return nil
}

// logSink records tier changes the sweep produced. The reconciler has
// no dependent services wired, so the log is the whole audit trail.
type logSink struct {
	logger *observability.Logger
}

func (s logSink) TierChanged(ctx context.Context, event *cascade.Event) {
	s.logger.WithFields(map[string]interface{}{
		"account_id":  event.AccountID,
		"old_tier_id": event.OldTierID,
		"new_tier_id": event.NewTierID,
	}).Info("tier changed during sweep")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
