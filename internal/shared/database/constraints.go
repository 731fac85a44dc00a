package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds the checks gorm tags cannot express. Postgres has no
// ADD CONSTRAINT IF NOT EXISTS, so each one is dropped and re-added.
func MigrateConstraints(db *gorm.DB) error {
	statements := []string{
		`ALTER TABLE users DROP CONSTRAINT IF EXISTS chk_users_role`,
		`ALTER TABLE users ADD CONSTRAINT chk_users_role CHECK (role IN ('USER', 'ADMIN'))`,

		// only bcrypt output may land in refresh_token_hash, never a raw token
		`ALTER TABLE users DROP CONSTRAINT IF EXISTS chk_users_refresh_token_hash`,
		`ALTER TABLE users ADD CONSTRAINT chk_users_refresh_token_hash CHECK (refresh_token_hash IS NULL OR refresh_token_hash LIKE '$2%')`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
