package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-dm-relay/pkg/database"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/domain"
)

// Migrate creates the relay tables and the partial unique index that keeps
// at most one active request per pair.
func Migrate(db *gorm.DB) error {
	if err := database.AutoMigrate(db,
		&domain.UserModel{},
		&domain.MessageModel{},
		&domain.ChatRequestModel{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// MySQL has no partial indexes; Create's pre-check is the only guard there.
	if db.Dialector.Name() == "mysql" {
		return nil
	}

	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uidx_chat_requests_active
		 ON chat_requests (pair_key)
		 WHERE status IN ('pending', 'accepted')`,
	).Error; err != nil {
		return fmt.Errorf("create partial unique index uidx_chat_requests_active: %w", err)
	}
	return nil
}
