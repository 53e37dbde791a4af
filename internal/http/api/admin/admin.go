package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soldierhq/helpergate/internal/config"
	handlers "github.com/soldierhq/helpergate/internal/http/api/admin/handlers"
	"github.com/soldierhq/helpergate/internal/security"
	"github.com/soldierhq/helpergate/internal/store"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers the health probe and the token-guarded admin routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, billing *store.BillingStore, adminCfg config.AdminConfig) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	if billing == nil {
		return
	}

	authed := r.Group("/v0/admin")
	authed.Use(adminAuthMiddleware(adminCfg.TokenHash))

	purchaseHandler := handlers.NewPurchaseHandler(billing)
	authed.POST("/purchases", purchaseHandler.Create)
	authed.GET("/grants", purchaseHandler.ListGrants)

	userHandler := handlers.NewUserHandler(billing)
	authed.PUT("/users", userHandler.Upsert)
	authed.GET("/users/:clerkId", userHandler.Get)

	settingHandler := handlers.NewSettingHandler(db)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)
}

// adminAuthMiddleware checks the bearer token against the configured bcrypt hash.
func adminAuthMiddleware(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin api disabled"})
			return
		}
		token, errToken := security.BearerToken(c.GetHeader("Authorization"))
		if errToken != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if errVerify := security.VerifyAdminToken(tokenHash, token); errVerify != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
