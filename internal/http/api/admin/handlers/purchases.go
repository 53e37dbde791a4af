package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/models"
	"github.com/soldierhq/helpergate/internal/store"
)

// PurchaseRecorder persists settled checkouts and answers grant lookups.
type PurchaseRecorder interface {
	RecordPurchase(ctx context.Context, p store.Purchase) (*store.PurchaseResult, error)
	ListGrantsContainingHelper(ctx context.Context, helperID string, limit int) ([]models.UnlockGrant, error)
}

// PurchaseHandler records purchases and lists unlock grants.
type PurchaseHandler struct {
	billing PurchaseRecorder
}

// NewPurchaseHandler constructs a PurchaseHandler.
func NewPurchaseHandler(billing PurchaseRecorder) *PurchaseHandler {
	return &PurchaseHandler{billing: billing}
}

// purchaseRequest defines the request body for recording a purchase.
type purchaseRequest struct {
	ClerkID              string     `json:"clerkId"`
	Email                string     `json:"email"`
	PlanID               string     `json:"planId"`
	PlanType             string     `json:"planType"`
	Amount               float64    `json:"amount"`
	Currency             string     `json:"currency"`
	UnlockedSoldiers     []string   `json:"unlockedSoldiers"`
	AddOn                bool       `json:"addOn"`
	StripeCustomerID     string     `json:"stripeCustomerId"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId"`
	StripePriceID        string     `json:"stripePriceId"`
	StripeSessionID      *string    `json:"stripeSessionId"`
	PaymentIntentID      *string    `json:"paymentIntentId"`
	CurrentPeriodStart   *time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd"`
}

// Create records one purchase: payment, subscription upsert and unlock grant.
func (h *PurchaseHandler) Create(c *gin.Context) {
	var body purchaseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.UnlockedSoldiers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unlockedSoldiers is required"})
		return
	}
	if body.Amount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be non-negative"})
		return
	}
	grantType := models.GrantTypeBase
	if body.AddOn {
		grantType = models.GrantTypeAddOn
	}

	result, errRecord := h.billing.RecordPurchase(c.Request.Context(), store.Purchase{
		ClerkID:              body.ClerkID,
		Email:                strings.TrimSpace(body.Email),
		PlanID:               body.PlanID,
		PlanType:             strings.TrimSpace(body.PlanType),
		Amount:               body.Amount,
		Currency:             body.Currency,
		Helpers:              body.UnlockedSoldiers,
		GrantType:            grantType,
		StripeCustomerID:     strings.TrimSpace(body.StripeCustomerID),
		StripeSubscriptionID: strings.TrimSpace(body.StripeSubscriptionID),
		StripePriceID:        strings.TrimSpace(body.StripePriceID),
		StripeSessionID:      body.StripeSessionID,
		PaymentIntentID:      body.PaymentIntentID,
		PeriodStart:          body.CurrentPeriodStart,
		PeriodEnd:            body.CurrentPeriodEnd,
	})
	if errRecord != nil {
		if errors.Is(errRecord, store.ErrInvalidPurchase) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "clerkId and planId are required"})
			return
		}
		log.WithError(errRecord).WithField("user", body.ClerkID).Error("admin: record purchase failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record purchase failed"})
		return
	}
	log.WithFields(log.Fields{
		"user":         result.Subscription.ClerkID,
		"subscription": result.Subscription.ID,
		"grant":        result.Grant.ID,
	}).Info("admin: purchase recorded")
	c.JSON(http.StatusCreated, gin.H{
		"subscription_id": result.Subscription.ID,
		"grant_id":        result.Grant.ID,
		"payment_id":      result.Payment.ID,
		"interval":        result.Subscription.Interval,
		"status":          result.Subscription.Status,
	})
}

// ListGrants returns grants whose helper list contains the helper query value.
func (h *PurchaseHandler) ListGrants(c *gin.Context) {
	helperID := strings.TrimSpace(c.Query("helper"))
	if helperID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "helper is required"})
		return
	}
	limit := parseLimit(c.Query("limit"))
	rows, errList := h.billing.ListGrantsContainingHelper(c.Request.Context(), helperID, limit)
	if errList != nil {
		log.WithError(errList).Error("admin: list grants failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list grants failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		item, errFormat := formatGrant(&rows[i])
		if errFormat != nil {
			log.WithError(errFormat).Error("admin: decode grant failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list grants failed"})
			return
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"grants": out})
}

func formatGrant(g *models.UnlockGrant) (gin.H, error) {
	helpers, errHelpers := g.Helpers()
	if errHelpers != nil {
		return nil, errHelpers
	}
	return gin.H{
		"id":                 g.ID,
		"subscription_id":    g.BillingSubscriptionID,
		"clerk_id":           g.ClerkID,
		"unlocked_soldiers":  helpers,
		"interval":           g.Interval,
		"type":               g.Type,
		"amount":             g.Amount,
		"current_period_end": g.CurrentPeriodEnd,
		"created_at":         g.CreatedAt,
	}, nil
}

// parseLimit reads an optional positive page size; zero lets the store decide.
func parseLimit(raw string) int {
	limit, errParse := strconv.Atoi(strings.TrimSpace(raw))
	if errParse != nil || limit < 0 {
		return 0
	}
	return limit
}
