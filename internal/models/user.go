package models

import "time"

// User represents an end-user account mirrored from the identity provider.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ClerkID string `gorm:"type:varchar(191);not null;uniqueIndex"` // External user identifier.
	Name    string `gorm:"type:text"`                              // Display name.
	Email   string `gorm:"type:text"`                              // Email address.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
