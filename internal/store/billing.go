package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soldierhq/helpergate/internal/db"
	"github.com/soldierhq/helpergate/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidPurchase reports a purchase missing required fields.
var ErrInvalidPurchase = errors.New("store: invalid purchase")

// ErrInvalidUser reports a user upsert without a clerk id.
var ErrInvalidUser = errors.New("store: invalid user")

// BillingStore reads and writes subscriptions, grants and payments.
type BillingStore struct {
	db *gorm.DB
}

// NewBillingStore constructs a BillingStore.
func NewBillingStore(conn *gorm.DB) *BillingStore {
	return &BillingStore{db: conn}
}

// FindSubscriptionByUser returns the user's subscription, or nil when absent.
func (s *BillingStore) FindSubscriptionByUser(ctx context.Context, userID string) (*models.BillingSubscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: billing store not initialized")
	}
	var sub models.BillingSubscription
	errFind := s.db.WithContext(ctx).Where("clerk_id = ?", userID).Take(&sub).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find subscription: %w", errFind)
	}
	return &sub, nil
}

// FindActiveSubscriptionByUser returns the newest ACTIVE subscription of the
// user, or nil when none exists.
func (s *BillingStore) FindActiveSubscriptionByUser(ctx context.Context, userID string) (*models.BillingSubscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: billing store not initialized")
	}
	var sub models.BillingSubscription
	errFind := s.db.WithContext(ctx).
		Where("clerk_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Order("created_at DESC").
		Order("id DESC").
		Take(&sub).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find active subscription: %w", errFind)
	}
	return &sub, nil
}

// FindGrantsBySubscription lists a subscription's grants, newest first.
func (s *BillingStore) FindGrantsBySubscription(ctx context.Context, subscriptionID uint64) ([]models.UnlockGrant, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: billing store not initialized")
	}
	var grants []models.UnlockGrant
	if errFind := s.db.WithContext(ctx).
		Where("billing_subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&grants).Error; errFind != nil {
		return nil, fmt.Errorf("store: list grants: %w", errFind)
	}
	return grants, nil
}

// ListGrantsContainingHelper lists grants whose helper list includes helperID,
// newest first.
func (s *BillingStore) ListGrantsContainingHelper(ctx context.Context, helperID string, limit int) ([]models.UnlockGrant, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: billing store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	conn := s.db.WithContext(ctx)
	var grants []models.UnlockGrant
	if errFind := conn.
		Where(db.JSONArrayContainsExpr(conn, "unlocked_soldiers"), db.JSONArrayContainsString(conn, helperID)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&grants).Error; errFind != nil {
		return nil, fmt.Errorf("store: search grants: %w", errFind)
	}
	return grants, nil
}

// FindUser returns the user mirrored for clerkID, or nil when absent.
func (s *BillingStore) FindUser(ctx context.Context, clerkID string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: billing store not initialized")
	}
	var user models.User
	errFind := s.db.WithContext(ctx).Where("clerk_id = ?", clerkID).Take(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find user: %w", errFind)
	}
	return &user, nil
}

// UpsertUser mirrors an identity-provider user, updating name and email
// when the clerk id already exists.
func (s *BillingStore) UpsertUser(ctx context.Context, clerkID, name, email string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: billing store not initialized")
	}
	clerkID = strings.TrimSpace(clerkID)
	if clerkID == "" {
		return nil, fmt.Errorf("%w: clerk id is required", ErrInvalidUser)
	}
	user := models.User{ClerkID: clerkID, Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "clerk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "updated_at"}),
	}).Create(&user).Error
	if errUpsert != nil {
		return nil, fmt.Errorf("store: upsert user: %w", errUpsert)
	}
	return s.FindUser(ctx, clerkID)
}

// Purchase describes a settled checkout to record.
type Purchase struct {
	ClerkID  string
	Email    string
	PlanID   string
	PlanType string
	Amount   float64
	Currency string

	Helpers   []string
	GrantType models.GrantType

	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	StripeSessionID      *string
	PaymentIntentID      *string

	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// PurchaseResult holds the rows touched by RecordPurchase.
type PurchaseResult struct {
	Subscription models.BillingSubscription
	Grant        models.UnlockGrant
	Payment      models.Payment
}

// RecordPurchase writes the payment, upserts the subscription keyed by
// clerk id and appends an unlock grant, all in one transaction.
func (s *BillingStore) RecordPurchase(ctx context.Context, p Purchase) (*PurchaseResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store: billing store not initialized")
	}
	p.ClerkID = strings.TrimSpace(p.ClerkID)
	p.PlanID = strings.ToUpper(strings.TrimSpace(p.PlanID))
	if p.ClerkID == "" || p.PlanID == "" {
		return nil, fmt.Errorf("%w: clerk id and plan id are required", ErrInvalidPurchase)
	}
	if p.GrantType != models.GrantTypeAddOn {
		p.GrantType = models.GrantTypeBase
	}
	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = "usd"
	}
	interval := models.BillingIntervalMonth
	lifetime := p.PlanID == models.PlanLifetime
	if lifetime {
		interval = models.BillingIntervalLifetime
	}

	result := &PurchaseResult{}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result.Payment = models.Payment{
			ClerkID:          p.ClerkID,
			Email:            p.Email,
			Amount:           p.Amount,
			Currency:         currency,
			Status:           models.PaymentStatusSucceeded,
			StripeCustomerID: p.StripeCustomerID,
			StripeSessionID:  p.StripeSessionID,
			PaymentIntentID:  p.PaymentIntentID,
		}
		if errCreate := tx.Create(&result.Payment).Error; errCreate != nil {
			return fmt.Errorf("store: create payment: %w", errCreate)
		}

		sub := models.BillingSubscription{
			ClerkID:              p.ClerkID,
			Email:                p.Email,
			PlanID:               p.PlanID,
			PlanType:             p.PlanType,
			Status:               models.SubscriptionStatusActive,
			Interval:             interval,
			Amount:               p.Amount,
			StripeCustomerID:     p.StripeCustomerID,
			StripeSubscriptionID: p.StripeSubscriptionID,
			StripePriceID:        p.StripePriceID,
			CurrentPeriodStart:   p.PeriodStart,
			CurrentPeriodEnd:     p.PeriodEnd,
			CancelAtPeriodEnd:    !lifetime,
		}
		if errUpsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "clerk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"plan_id", "plan_type", "status", "interval", "amount",
				"stripe_customer_id", "stripe_subscription_id", "stripe_price_id",
				"current_period_start", "current_period_end", "cancel_at_period_end",
				"updated_at",
			}),
		}).Create(&sub).Error; errUpsert != nil {
			return fmt.Errorf("store: upsert subscription: %w", errUpsert)
		}
		if errReload := tx.Where("clerk_id = ?", p.ClerkID).Take(&result.Subscription).Error; errReload != nil {
			return fmt.Errorf("store: reload subscription: %w", errReload)
		}

		result.Grant = models.UnlockGrant{
			BillingSubscriptionID: result.Subscription.ID,
			ClerkID:               p.ClerkID,
			UnlockedSoldiers:      models.HelpersJSON(p.Helpers),
			Interval:              interval,
			Type:                  p.GrantType,
			Amount:                p.Amount,
			StripeCustomerID:      p.StripeCustomerID,
			StripeSubscriptionID:  p.StripeSubscriptionID,
			StripePriceID:         p.StripePriceID,
			CurrentPeriodStart:    p.PeriodStart,
			CurrentPeriodEnd:      p.PeriodEnd,
		}
		if errCreate := tx.Create(&result.Grant).Error; errCreate != nil {
			return fmt.Errorf("store: create grant: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return result, nil
}
