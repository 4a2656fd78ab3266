package sso

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

// Migrations contains the credential schema migrations in order.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create credentials table",
		SQL: `
			CREATE TABLE IF NOT EXISTS credentials (
				id BIGSERIAL PRIMARY KEY,
				account_id BIGINT NOT NULL,
				character_id BIGINT NOT NULL,
				owner_hash TEXT NOT NULL,
				refresh_token TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_credentials_hash ON credentials(owner_hash);
			CREATE INDEX IF NOT EXISTS idx_credentials_account ON credentials(account_id);
		`,
	},
}

// RunMigrations applies all credential migrations to the database.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, migration := range Migrations {
		if _, err := db.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w",
				migration.Version, migration.Description, err)
		}
	}
	return nil
}
