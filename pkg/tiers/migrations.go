package tiers

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all tier migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tiers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tiers (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					priority INTEGER NOT NULL UNIQUE,
					is_public BOOLEAN NOT NULL DEFAULT FALSE,
					member_characters JSONB NOT NULL DEFAULT '[]',
					member_corporations JSONB NOT NULL DEFAULT '[]',
					member_alliances JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_tiers_priority ON tiers(priority);
			`,
		},
	}
}

// RunMigrations applies all tier migrations in order.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range GetMigrations() {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("tier migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}
