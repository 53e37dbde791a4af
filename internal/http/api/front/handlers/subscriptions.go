package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/entitlement"
)

// SubscriptionHandler serves the signed-in user's subscription views.
type SubscriptionHandler struct {
	access AccessChecker
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(checker AccessChecker) *SubscriptionHandler {
	return &SubscriptionHandler{access: checker}
}

// Status returns the unlocked helpers and the subscription state of the path user.
func (h *SubscriptionHandler) Status(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if userID != sessionUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	status, errStatus := h.access.SubscriptionStatus(c.Request.Context(), userID)
	if errStatus != nil {
		log.WithError(errStatus).WithField("user", userID).Error("subscriptions: status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"unlockedSoldiers":     entitlement.Dedupe(status.UnlockedHelpers),
		"hasValidSubscription": string(status.State),
	})
}

// Current returns the session user's active subscription with its grants.
func (h *SubscriptionHandler) Current(c *gin.Context) {
	userID := sessionUserID(c)
	summary, errSummary := h.access.SubscriptionSummary(c.Request.Context(), userID)
	if errSummary != nil {
		log.WithError(errSummary).WithField("user", userID).Error("subscriptions: summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subscription"})
		return
	}
	if !summary.UserFound {
		c.JSON(http.StatusOK, gin.H{"subscription": nil, "message": "User not found"})
		return
	}
	if summary.Subscription == nil {
		c.JSON(http.StatusOK, gin.H{"subscription": nil})
		return
	}

	sub := summary.Subscription
	addOns := make([]gin.H, 0, len(summary.AddOns))
	for _, addOn := range summary.AddOns {
		addOns = append(addOns, gin.H{
			"addOnUnlockedSoldiers": addOn.Helpers,
			"expiryDate":            addOn.ExpiryDate,
			"interval":              addOn.Interval,
			"amount":                addOn.Amount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"subscription": gin.H{
		"id":                    sub.ID,
		"planType":              sub.PlanType,
		"interval":              sub.Interval,
		"status":                sub.Status,
		"amount":                sub.Amount,
		"currentPeriodEnd":      sub.CurrentPeriodEnd,
		"stripeSubscriptionId":  sub.StripeSubscriptionID,
		"stripeCustomerId":      sub.StripeCustomerID,
		"unlockedSoldiers":      entitlement.Dedupe(summary.BaseHelpers),
		"addOnUnlockedSoldiers": addOns,
		"createdAt":             sub.CreatedAt,
	}})
}
