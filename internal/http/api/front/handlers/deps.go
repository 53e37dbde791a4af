package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soldierhq/helpergate/internal/access"
	"github.com/soldierhq/helpergate/internal/entitlement"
	"github.com/soldierhq/helpergate/internal/models"
	"github.com/soldierhq/helpergate/internal/ratelimit"
)

// SessionUserIDKey is the gin context key holding the signed-in user id.
const SessionUserIDKey = "sessionUserID"

// AccessChecker is the access service surface used by the handlers.
type AccessChecker interface {
	CheckHelperAccess(ctx context.Context, userID, helperID string) (entitlement.AccessDecision, error)
	SubscriptionStatus(ctx context.Context, userID string) (access.Status, error)
	SubscriptionSummary(ctx context.Context, userID string) (access.Summary, error)
}

// ConversationStore is the persistence surface used by the conversation handlers.
type ConversationStore interface {
	ReplaceEmptyAndCreate(ctx context.Context, userID, helperID string) (*models.Conversation, int64, error)
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) (*models.Message, error)
	Archive(ctx context.Context, conversationID string) error
}

// RateLimiter counts requests per user and helper.
type RateLimiter interface {
	Check(ctx context.Context, userID, helperID string) (ratelimit.Result, ratelimit.Decision, error)
}

// allowRequest applies the rate limit and writes a 429 when exceeded.
// Limiter failures are logged and let the request through.
func allowRequest(c *gin.Context, limiter RateLimiter, userID, helperID string) bool {
	if limiter == nil {
		return true
	}
	result, _, errCheck := limiter.Check(c.Request.Context(), userID, helperID)
	if errCheck != nil {
		_ = c.Error(errCheck)
		return true
	}
	if result.Allowed {
		return true
	}
	retryAfter := int(time.Until(result.Reset).Seconds() + 0.999)
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
	return false
}

func sessionUserID(c *gin.Context) string {
	value, ok := c.Get(SessionUserIDKey)
	if !ok {
		return ""
	}
	userID, _ := value.(string)
	return userID
}
