package ownership

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations contains the ownership schema migrations in order.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create ownerships table",
		SQL: `
			CREATE TABLE IF NOT EXISTS ownerships (
				character_id BIGINT PRIMARY KEY,
				account_id BIGINT NOT NULL,
				owner_hash TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_ownerships_account ON ownerships(account_id);
			CREATE INDEX IF NOT EXISTS idx_ownerships_hash ON ownerships(owner_hash);
		`,
	},
	{
		Version:     2,
		Description: "Create ownership_records table",
		SQL: `
			CREATE TABLE IF NOT EXISTS ownership_records (
				id BIGSERIAL PRIMARY KEY,
				character_id BIGINT NOT NULL,
				account_id BIGINT NOT NULL,
				owner_hash TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_ownership_records_lookup
				ON ownership_records(owner_hash, character_id);
		`,
	},
}

// RunMigrations applies all ownership migrations to the database.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, migration := range Migrations {
		if _, err := db.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w",
				migration.Version, migration.Description, err)
		}
	}
	return nil
}
