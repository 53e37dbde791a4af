package models

import "time"

// PaymentStatusSucceeded marks a settled checkout payment.
const PaymentStatusSucceeded = "SUCCEEDED"

// Payment is the ledger row written for every recorded checkout.
type Payment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ClerkID string `gorm:"type:varchar(191);not null;index"` // External user identifier.
	Email   string `gorm:"type:text;not null;default:''"`    // Billing email.

	Amount   float64 `gorm:"type:decimal(10,2);not null;default:0"`  // Amount charged.
	Currency string  `gorm:"type:varchar(8);not null;default:'usd'"` // ISO currency code.
	Status   string  `gorm:"type:varchar(32);not null"`              // Payment state.

	StripeCustomerID string  `gorm:"type:varchar(191)"` // Stripe customer reference.
	StripeSessionID  *string `gorm:"type:varchar(191)"` // Checkout session reference.
	PaymentIntentID  *string `gorm:"type:varchar(191)"` // Payment intent reference.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
