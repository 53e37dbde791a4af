package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/soldierhq/helpergate/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	snapshotMu sync.RWMutex
	snapshot   = map[string]json.RawMessage{}
)

// DBConfigValue returns the cached raw value for key.
func DBConfigValue(key string) (json.RawMessage, bool) {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	raw, ok := snapshot[key]
	if !ok || len(raw) == 0 {
		return nil, false
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, true
}

// StoreDBConfig replaces the cached snapshot.
func StoreDBConfig(values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for key, raw := range values {
		next[key] = raw
	}
	snapshotMu.Lock()
	snapshot = next
	snapshotMu.Unlock()
}

// Reload reads every setting row into the cached snapshot.
func Reload(ctx context.Context, db *gorm.DB) (map[string]json.RawMessage, error) {
	if db == nil {
		return nil, fmt.Errorf("settings: nil db")
	}
	var rows []models.Setting
	if errFind := db.WithContext(ctx).Order("key ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("settings: list: %w", errFind)
	}
	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		values[row.Key] = json.RawMessage(row.Value)
	}
	StoreDBConfig(values)
	return values, nil
}

// Upsert writes one setting and refreshes the cached snapshot.
func Upsert(ctx context.Context, db *gorm.DB, key string, value json.RawMessage) error {
	if db == nil {
		return fmt.Errorf("settings: nil db")
	}
	if !IsKnownKey(key) {
		return fmt.Errorf("settings: unknown key %q", key)
	}
	if !json.Valid(value) {
		return fmt.Errorf("settings: invalid json for %s", key)
	}
	if errValidate := ValidateValue(key, value); errValidate != nil {
		return fmt.Errorf("settings: %s: %w", key, errValidate)
	}
	row := models.Setting{Key: key, Value: []byte(value), UpdatedAt: time.Now().UTC()}
	if errSave := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; errSave != nil {
		return fmt.Errorf("settings: upsert %s: %w", key, errSave)
	}
	_, errReload := Reload(ctx, db)
	return errReload
}

// StartAutoReload refreshes the snapshot every interval until ctx ends, so
// changes made by other replicas become visible.
func StartAutoReload(ctx context.Context, db *gorm.DB, interval time.Duration, onError func(error)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, errReload := Reload(ctx, db); errReload != nil && onError != nil {
					onError(errReload)
				}
			}
		}
	}()
}
