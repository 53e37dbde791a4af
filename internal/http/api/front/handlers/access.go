package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/entitlement"
)

// AccessHandler serves the per-helper entitlement check.
type AccessHandler struct {
	access AccessChecker
}

// NewAccessHandler constructs an AccessHandler.
func NewAccessHandler(checker AccessChecker) *AccessHandler {
	return &AccessHandler{access: checker}
}

// Validate reports whether the user may talk to the helper in the conversation.
// Every business outcome is a 200; the body says why access was denied.
func (h *AccessHandler) Validate(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	userID := strings.TrimSpace(c.Param("userId"))
	helperID := strings.TrimSpace(c.Param("helperId"))
	if conversationID == "" || userID == "" || helperID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"validatedUser": false,
			"error":         "Missing required parameters: conversationId, userId, or helperId",
		})
		return
	}

	decision, errCheck := h.access.CheckHelperAccess(c.Request.Context(), userID, helperID)
	if errCheck != nil {
		log.WithError(errCheck).WithField("user", userID).Error("access: validate helper failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"validatedUser": false,
			"error":         "Internal server error while validating user access",
			"details":       detailsJSON(entitlement.AccessDetails{}),
		})
		return
	}

	body := gin.H{
		"validatedUser": decision.ValidatedUser,
		"details":       detailsJSON(decision.Details),
	}
	if decision.ValidatedUser {
		body["message"] = decision.Reason
	} else {
		body["error"] = decision.Reason
	}
	c.JSON(http.StatusOK, body)
}

// detailsJSON renders access details; optional fields are omitted when unset.
func detailsJSON(d entitlement.AccessDetails) gin.H {
	out := gin.H{
		"hasSubscription":       d.HasSubscription,
		"isSubscriptionActive":  d.IsSubscriptionActive,
		"isSubscriptionExpired": d.IsSubscriptionExpired,
		"hasHelperUnlocked":     d.HasHelperUnlocked,
		"isHelperExpired":       d.IsHelperExpired,
	}
	if d.SubscriptionEndDate != nil {
		out["subscriptionEndDate"] = d.SubscriptionEndDate
	}
	if d.HelperExpiryDate != nil {
		out["helperExpiryDate"] = d.HelperExpiryDate
	}
	if d.AvailableHelpers != nil {
		out["availableHelpers"] = entitlement.Dedupe(d.AvailableHelpers)
	}
	return out
}
