package database

import (
	"gorm.io/gorm"

	"magicstream/internal/users"
)

func Migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return err
	}
	if err := db.AutoMigrate(&users.User{}); err != nil {
		return err
	}
	return MigrateConstraints(db)
}
