package models

import "time"

// Message roles.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message is a single turn inside a conversation.
type Message struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ConversationID string `gorm:"type:varchar(36);not null;index"` // Parent conversation ID.
	Role           string `gorm:"type:varchar(16);not null"`       // Author role.
	Content        string `gorm:"type:text;not null"`              // Message body.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
