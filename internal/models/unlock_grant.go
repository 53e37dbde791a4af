package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// GrantType separates base-plan grants from add-on purchases.
type GrantType string

// GrantType constants define grant kinds.
const (
	// GrantTypeBase is a grant bought with the base plan.
	GrantTypeBase GrantType = "WITHOUT_ADDONS"
	// GrantTypeAddOn is a grant bought as an add-on.
	GrantTypeAddOn GrantType = "ADDONS"
)

// UnlockGrant records the helpers unlocked by one purchase.
type UnlockGrant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BillingSubscriptionID uint64 `gorm:"not null;index"`                   // Parent subscription ID.
	ClerkID               string `gorm:"type:varchar(191);not null;index"` // External user identifier.

	UnlockedSoldiers datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Unlocked helper identifiers.

	Interval BillingInterval `gorm:"type:varchar(16);not null;default:'MONTH'"`          // Renewal cadence.
	Type     GrantType       `gorm:"type:varchar(32);not null;default:'WITHOUT_ADDONS'"` // Base or add-on.

	Amount float64 `gorm:"type:decimal(10,2);not null;default:0"` // Amount charged.

	StripeCustomerID     string `gorm:"type:varchar(191)"` // Stripe customer reference.
	StripeSubscriptionID string `gorm:"type:varchar(191)"` // Stripe subscription reference.
	StripePriceID        string `gorm:"type:varchar(191)"` // Stripe price reference.

	CurrentPeriodStart *time.Time // Grant period start.
	CurrentPeriodEnd   *time.Time // Grant period end, ignored for lifetime grants.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Helpers decodes the unlocked helper identifiers, skipping blanks.
// An undecodable column is an error, never an empty list.
func (g *UnlockGrant) Helpers() ([]string, error) {
	if g == nil || len(g.UnlockedSoldiers) == 0 {
		return []string{}, nil
	}
	var raw []string
	if errUnmarshal := json.Unmarshal(g.UnlockedSoldiers, &raw); errUnmarshal != nil {
		return nil, fmt.Errorf("models: decode unlocked_soldiers of grant %d: %w", g.ID, errUnmarshal)
	}
	out := make([]string, 0, len(raw))
	for _, helper := range raw {
		if trimmed := strings.TrimSpace(helper); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

// HelpersJSON encodes helper identifiers for the unlocked_soldiers column.
func HelpersJSON(helpers []string) datatypes.JSON {
	cleaned := make([]string, 0, len(helpers))
	for _, helper := range helpers {
		if trimmed := strings.TrimSpace(helper); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	raw, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}
