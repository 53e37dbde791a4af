package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/models"
	"github.com/soldierhq/helpergate/internal/store"
)

// UserWriter mirrors identity-provider users.
type UserWriter interface {
	UpsertUser(ctx context.Context, clerkID, name, email string) (*models.User, error)
	FindUser(ctx context.Context, clerkID string) (*models.User, error)
}

// UserHandler manages mirrored user records.
type UserHandler struct {
	users UserWriter
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users UserWriter) *UserHandler {
	return &UserHandler{users: users}
}

// upsertUserRequest defines the request body for user upserts.
type upsertUserRequest struct {
	ClerkID string `json:"clerkId"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// Upsert creates or refreshes a user keyed by clerk id.
func (h *UserHandler) Upsert(c *gin.Context) {
	var body upsertUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, errUpsert := h.users.UpsertUser(c.Request.Context(), body.ClerkID, body.Name, body.Email)
	if errUpsert != nil {
		if errors.Is(errUpsert, store.ErrInvalidUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing clerkId"})
			return
		}
		log.WithError(errUpsert).Error("admin: upsert user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert user failed"})
		return
	}
	c.JSON(http.StatusOK, formatUser(user))
}

// Get returns a user by clerk id.
func (h *UserHandler) Get(c *gin.Context) {
	clerkID := strings.TrimSpace(c.Param("clerkId"))
	if clerkID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clerkId"})
		return
	}
	user, errFind := h.users.FindUser(c.Request.Context(), clerkID)
	if errFind != nil {
		log.WithError(errFind).Error("admin: find user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, formatUser(user))
}

func formatUser(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"clerk_id":   user.ClerkID,
		"name":       user.Name,
		"email":      user.Email,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
	}
}
