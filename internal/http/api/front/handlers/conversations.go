package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/entitlement"
	"github.com/soldierhq/helpergate/internal/models"
	"github.com/soldierhq/helpergate/internal/store"
)

// ConversationHandler creates and continues helper conversations.
type ConversationHandler struct {
	access        AccessChecker
	conversations ConversationStore
	limiter       RateLimiter
}

// NewConversationHandler constructs a ConversationHandler.
func NewConversationHandler(checker AccessChecker, conversations ConversationStore, limiter RateLimiter) *ConversationHandler {
	return &ConversationHandler{access: checker, conversations: conversations, limiter: limiter}
}

// createConversationRequest defines the request body for creating conversations.
type createConversationRequest struct {
	HelperID string `json:"helperId"`
	ClerkID  string `json:"clerkId"`
}

// Create checks helper access, drops the user's empty conversations and
// starts a new one.
func (h *ConversationHandler) Create(c *gin.Context) {
	var body createConversationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: helperId or clerkId"})
		return
	}
	helperID := strings.TrimSpace(body.HelperID)
	clerkID := strings.TrimSpace(body.ClerkID)
	if helperID == "" || clerkID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: helperId or clerkId"})
		return
	}
	if !allowRequest(c, h.limiter, clerkID, helperID) {
		return
	}

	decision, errCheck := h.access.CheckHelperAccess(c.Request.Context(), clerkID, helperID)
	if errCheck != nil {
		log.WithError(errCheck).WithField("user", clerkID).Error("conversations: access check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating conversation"})
		return
	}
	if !decision.ValidatedUser {
		c.JSON(http.StatusForbidden, gin.H{"error": creationDenialMessage(decision)})
		return
	}

	conv, removed, errCreate := h.conversations.ReplaceEmptyAndCreate(c.Request.Context(), clerkID, helperID)
	if errCreate != nil {
		log.WithError(errCreate).WithField("user", clerkID).Error("conversations: create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating conversation"})
		return
	}
	log.WithFields(log.Fields{"conversation": conv.ID, "removed_empty": removed}).Debug("conversations: created")
	c.JSON(http.StatusCreated, gin.H{"conversationId": conv.ID})
}

func creationDenialMessage(decision entitlement.AccessDecision) string {
	switch decision.Stage {
	case entitlement.StageSubscription:
		return entitlement.ReasonNoSubscription
	case entitlement.StageSubscriptionActive, entitlement.StageSubscriptionExpiry:
		return entitlement.ReasonInactive
	case entitlement.StageHelperUnlocked:
		return "Selected helper is not part of unlocked soldiers"
	default:
		return decision.Reason
	}
}

// List returns the signed-in user's non-archived conversations.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := sessionUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	rows, errList := h.conversations.ListByUser(c.Request.Context(), userID)
	if errList != nil {
		log.WithError(errList).Error("conversations: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list conversations failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatConversation(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// Get returns one conversation with its messages, for its owner only.
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	messages, errList := h.conversations.ListMessages(c.Request.Context(), conv.ID)
	if errList != nil {
		log.WithError(errList).Error("conversations: list messages failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list messages failed"})
		return
	}
	out := formatConversation(conv)
	items := make([]gin.H, 0, len(messages))
	for _, msg := range messages {
		items = append(items, formatMessage(&msg))
	}
	out["messages"] = items
	c.JSON(http.StatusOK, out)
}

// appendMessageRequest defines the request body for appending messages.
type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AppendMessage re-checks helper access and stores a message.
func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	var body appendMessageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	role := strings.ToLower(strings.TrimSpace(body.Role))
	if role == "" {
		role = models.MessageRoleUser
	}
	if role != models.MessageRoleUser && role != models.MessageRoleAssistant {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user or assistant"})
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if !allowRequest(c, h.limiter, conv.UserID, conv.HelperID) {
		return
	}

	decision, errCheck := h.access.CheckHelperAccess(c.Request.Context(), conv.UserID, conv.HelperID)
	if errCheck != nil {
		log.WithError(errCheck).WithField("conversation", conv.ID).Error("conversations: access check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error adding message"})
		return
	}
	if !decision.ValidatedUser {
		c.JSON(http.StatusForbidden, gin.H{"error": decision.Reason, "details": detailsJSON(decision.Details)})
		return
	}

	msg, errAppend := h.conversations.AppendMessage(c.Request.Context(), conv.ID, role, body.Content)
	if errAppend != nil {
		if errors.Is(errAppend, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		log.WithError(errAppend).WithField("conversation", conv.ID).Error("conversations: append failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error adding message"})
		return
	}
	c.JSON(http.StatusCreated, formatMessage(msg))
}

// Archive hides a conversation from the owner's listing.
func (h *ConversationHandler) Archive(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if errArchive := h.conversations.Archive(c.Request.Context(), conv.ID); errArchive != nil {
		if errors.Is(errArchive, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		log.WithError(errArchive).WithField("conversation", conv.ID).Error("conversations: archive failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadOwned fetches the path conversation and checks it belongs to the
// signed-in user.
func (h *ConversationHandler) loadOwned(c *gin.Context) (*models.Conversation, bool) {
	userID := sessionUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
		return nil, false
	}
	conv, errGet := h.conversations.Get(c.Request.Context(), conversationID)
	if errGet != nil {
		if errors.Is(errGet, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return nil, false
		}
		log.WithError(errGet).WithField("conversation", conversationID).Error("conversations: load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load conversation failed"})
		return nil, false
	}
	if conv.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation belongs to another user"})
		return nil, false
	}
	return conv, true
}

func formatConversation(conv *models.Conversation) gin.H {
	return gin.H{
		"id":        conv.ID,
		"userId":    conv.UserID,
		"helperId":  conv.HelperID,
		"title":     conv.Title,
		"archived":  conv.Archived,
		"createdAt": conv.CreatedAt,
		"updatedAt": conv.UpdatedAt,
	}
}

func formatMessage(msg *models.Message) gin.H {
	return gin.H{
		"id":             msg.ID,
		"conversationId": msg.ConversationID,
		"role":           msg.Role,
		"content":        msg.Content,
		"createdAt":      msg.CreatedAt,
	}
}
