package models

import "time"

// BillingInterval represents the renewal cadence of a subscription or grant.
type BillingInterval string

// BillingInterval constants define renewal cadences.
const (
	// BillingIntervalMonth renews monthly.
	BillingIntervalMonth BillingInterval = "MONTH"
	// BillingIntervalYear renews yearly.
	BillingIntervalYear BillingInterval = "YEAR"
	// BillingIntervalLifetime never renews and never expires.
	BillingIntervalLifetime BillingInterval = "LIFETIME"
)

// SubscriptionStatus represents the lifecycle state of a billing subscription.
type SubscriptionStatus string

// SubscriptionStatus constants define subscription lifecycle states.
const (
	// SubscriptionStatusActive marks a paid, usable subscription.
	SubscriptionStatusActive SubscriptionStatus = "ACTIVE"
	// SubscriptionStatusCancelled marks a subscription cancelled by the user.
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	// SubscriptionStatusPastDue marks a subscription with a failed renewal.
	SubscriptionStatusPastDue SubscriptionStatus = "PAST_DUE"
)

// Plan identifiers sold through checkout.
const (
	PlanStarter      = "STARTER"
	PlanProfessional = "PROFESSIONAL"
	PlanSingle       = "SINGLE"
	PlanSoldiersX    = "SOLDIERSX"
	PlanLifetime     = "LIFETIME"
)

// BillingSubscription is the single billing record of a user.
type BillingSubscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ClerkID string `gorm:"type:varchar(191);not null;uniqueIndex"` // External user identifier.
	Email   string `gorm:"type:text;not null;default:''"`          // Billing email.

	PlanID   string `gorm:"type:varchar(32);not null"` // Purchased plan identifier.
	PlanType string `gorm:"type:varchar(64);not null"` // Plan bundle type.

	Status   SubscriptionStatus `gorm:"type:varchar(32);not null;default:'ACTIVE';index"` // Lifecycle state.
	Interval BillingInterval    `gorm:"type:varchar(16);not null;default:'MONTH'"`        // Renewal cadence.

	Amount float64 `gorm:"type:decimal(10,2);not null;default:0"` // Amount charged.

	StripeCustomerID     string `gorm:"type:varchar(191)"` // Stripe customer reference.
	StripeSubscriptionID string `gorm:"type:varchar(191)"` // Stripe subscription reference.
	StripePriceID        string `gorm:"type:varchar(191)"` // Stripe price reference.

	CurrentPeriodStart *time.Time                                 // Current billing period start.
	CurrentPeriodEnd   *time.Time                                 // Current billing period end.
	CancelAtPeriodEnd  bool       `gorm:"not null;default:false"` // Whether renewal is disabled.

	UnlockGrants []UnlockGrant `gorm:"foreignKey:BillingSubscriptionID"` // Related unlock grants.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
