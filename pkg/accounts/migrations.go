package accounts

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

// GetMigrations returns all account migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create characters table",
			SQL: `
				CREATE TABLE IF NOT EXISTS characters (
					id BIGINT PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					corporation_id BIGINT NOT NULL,
					alliance_id BIGINT,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_characters_corporation_id ON characters(corporation_id);
				CREATE INDEX idx_characters_alliance_id ON characters(alliance_id);
			`,
		},
		{
			Version:     2,
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					current_tier_id BIGINT NOT NULL REFERENCES tiers(id),
					primary_character_id BIGINT REFERENCES characters(id) ON DELETE SET NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					password_login BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_accounts_current_tier_id ON accounts(current_tier_id);
				CREATE INDEX idx_accounts_primary_character_id ON accounts(primary_character_id);
			`,
		},
	}
}

// RunMigrations applies all account migrations in order.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range GetMigrations() {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("account migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}
