package front

import (
	"net/http"

	"github.com/gin-gonic/gin"
	handlers "github.com/soldierhq/helpergate/internal/http/api/front/handlers"
	"github.com/soldierhq/helpergate/internal/security"
)

// Deps groups the collaborators of the user-facing routes.
type Deps struct {
	Access        handlers.AccessChecker
	Conversations handlers.ConversationStore
	Limiter       handlers.RateLimiter
	Sessions      *security.SessionManager
}

// RegisterFrontRoutes registers conversation and subscription routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Access == nil {
		return
	}

	accessHandler := handlers.NewAccessHandler(deps.Access)
	r.GET("/conversations/:conversationId/:userId/:helperId", accessHandler.Validate)

	if deps.Conversations != nil {
		conversationHandler := handlers.NewConversationHandler(deps.Access, deps.Conversations, deps.Limiter)
		r.POST("/conversations", conversationHandler.Create)

		owned := r.Group("/conversations")
		owned.Use(sessionMiddleware(deps.Sessions))
		owned.GET("", conversationHandler.List)
		owned.GET("/:conversationId", conversationHandler.Get)
		owned.POST("/:conversationId/messages", conversationHandler.AppendMessage)
		owned.POST("/:conversationId/archive", conversationHandler.Archive)
	}

	authed := r.Group("/user")
	authed.Use(sessionMiddleware(deps.Sessions))

	subscriptionHandler := handlers.NewSubscriptionHandler(deps.Access)
	authed.GET("/subscription", subscriptionHandler.Current)
	authed.GET("/:userId/subscription", subscriptionHandler.Status)
}

// sessionMiddleware validates the bearer session token and stores its subject.
func sessionMiddleware(sessions *security.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, errToken := security.BearerToken(c.GetHeader("Authorization"))
		if errToken != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		claims, errParse := sessions.Parse(token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(handlers.SessionUserIDKey, claims.UserID)
		c.Next()
	}
}
