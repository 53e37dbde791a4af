package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soldierhq/helpergate/internal/models"
	internalsettings "github.com/soldierhq/helpergate/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

func allModels() []any {
	return []any{
		&models.User{},
		&models.BillingSubscription{},
		&models.UnlockGrant{},
		&models.Payment{},
		&models.Conversation{},
		&models.Message{},
		&models.Setting{},
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(allModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errGrantIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_unlock_grants_soldiers
		ON unlock_grants USING GIN (unlocked_soldiers)
	`).Error; errGrantIdx != nil {
		return fmt.Errorf("db: create unlock grant soldiers index: %w", errGrantIdx)
	}
	if errConvIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_conversations_user_archived
		ON conversations (user_id, archived, updated_at DESC)
	`).Error; errConvIdx != nil {
		return fmt.Errorf("db: create conversation listing index: %w", errConvIdx)
	}
	return nil
}

// migrateSQLite applies SQLite schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(allModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errConvIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_conversations_user_archived
		ON conversations (user_id, archived, updated_at)
	`).Error; errConvIdx != nil {
		return fmt.Errorf("db: create conversation listing index: %w", errConvIdx)
	}
	return nil
}

// SeedSettings stores each value whose key is missing or empty. Existing
// values are left alone so runtime edits survive repeated seeding.
func SeedSettings(conn *gorm.DB, values map[string]any) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	for _, key := range internalsettings.Keys {
		value, ok := values[key]
		if !ok {
			continue
		}
		if errSeed := ensureSetting(conn, key, value); errSeed != nil {
			return errSeed
		}
	}
	return nil
}

// ensureSetting ensures a setting exists and fills it when empty.
func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      payload,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     payload,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
