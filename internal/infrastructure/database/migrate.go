package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/flockhq/flock-server/internal/infrastructure/database/entities"
)

// Migrate applies schema migrations for all tracked entities.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.Operator{},
		&entities.Conversation{},
		&entities.Message{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
