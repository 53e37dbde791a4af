package models

import "time"

// DefaultConversationTitle is assigned to freshly created conversations.
const DefaultConversationTitle = "New Conversation"

// Conversation is a chat session between a user and one helper.
type Conversation struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	UserID   string `gorm:"type:varchar(191);not null;index"` // External user identifier.
	HelperID string `gorm:"type:varchar(191);not null"`       // Helper identifier.
	Archived bool   `gorm:"not null;default:false"`           // Hidden from listings when true.
	Title    string `gorm:"type:text;not null"`               // Display title.

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"` // Related messages.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
