package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soldierhq/helpergate/internal/db"
	"github.com/soldierhq/helpergate/internal/models"
	"gorm.io/gorm"
)

// ErrConversationNotFound reports an unknown conversation id.
var ErrConversationNotFound = errors.New("store: conversation not found")

// ConversationStore persists conversations and their messages.
type ConversationStore struct {
	db    *gorm.DB
	newID func() string
}

// NewConversationStore constructs a ConversationStore.
func NewConversationStore(conn *gorm.DB) *ConversationStore {
	return &ConversationStore{db: conn, newID: uuid.NewString}
}

// ReplaceEmptyAndCreate deletes the user's conversations that hold no
// messages and creates a fresh one for helperID. Both steps share one
// transaction; concurrent calls for the same user serialize.
func (s *ConversationStore) ReplaceEmptyAndCreate(ctx context.Context, userID, helperID string) (*models.Conversation, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, fmt.Errorf("store: conversation store not initialized")
	}
	userID = strings.TrimSpace(userID)
	helperID = strings.TrimSpace(helperID)
	if userID == "" || helperID == "" {
		return nil, 0, fmt.Errorf("store: user id and helper id are required")
	}

	conv := &models.Conversation{
		ID:       s.newID(),
		UserID:   userID,
		HelperID: helperID,
		Title:    models.DefaultConversationTitle,
	}
	var removed int64
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errLock := db.LockUserXact(tx, userID); errLock != nil {
			return errLock
		}
		res := tx.Where("user_id = ?", userID).
			Where("NOT EXISTS (SELECT 1 FROM messages WHERE messages.conversation_id = conversations.id)").
			Delete(&models.Conversation{})
		if res.Error != nil {
			return fmt.Errorf("store: delete empty conversations: %w", res.Error)
		}
		removed = res.RowsAffected
		if errCreate := tx.Create(conv).Error; errCreate != nil {
			return fmt.Errorf("store: create conversation: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, 0, errTx
	}
	return conv, removed, nil
}

// Get returns a conversation by id, or ErrConversationNotFound.
func (s *ConversationStore) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: conversation store not initialized")
	}
	var conv models.Conversation
	if errFind := s.db.WithContext(ctx).Where("id = ?", conversationID).Take(&conv).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("store: find conversation: %w", errFind)
	}
	return &conv, nil
}

// ListByUser returns the user's non-archived conversations, most recently
// updated first.
func (s *ConversationStore) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: conversation store not initialized")
	}
	var rows []models.Conversation
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND archived = ?", userID, false).
		Order("updated_at DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list conversations: %w", errFind)
	}
	return rows, nil
}

// ListMessages returns a conversation's messages in insertion order.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: conversation store not initialized")
	}
	var rows []models.Message
	if errFind := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list messages: %w", errFind)
	}
	return rows, nil
}

// AppendMessage stores a message and bumps the conversation's updated_at.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: conversation store not initialized")
	}
	msg := &models.Message{ConversationID: conversationID, Role: role, Content: content}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return fmt.Errorf("store: touch conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		if errCreate := tx.Create(msg).Error; errCreate != nil {
			return fmt.Errorf("store: create message: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return msg, nil
}

// Archive hides a conversation from listings.
func (s *ConversationStore) Archive(ctx context.Context, conversationID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: conversation store not initialized")
	}
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("archived", true)
	if res.Error != nil {
		return fmt.Errorf("store: archive conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}
