// Package entitlement decides whether a user may talk to a helper, given a
// billing snapshot and a clock sample. It performs no I/O.
package entitlement

import "time"

// Interval values shared with the billing tables.
const (
	IntervalMonth    = "MONTH"
	IntervalYear     = "YEAR"
	IntervalLifetime = "LIFETIME"
)

// StatusActive is the only subscription status that grants access.
const StatusActive = "ACTIVE"

// Grant types.
const (
	GrantTypeBase  = "WITHOUT_ADDONS"
	GrantTypeAddOn = "ADDONS"
)

// SubscriptionState is the outcome of EvaluateSubscriptionStatus.
type SubscriptionState string

// SubscriptionState values.
const (
	StateValid    SubscriptionState = "VALID"
	StateExpired  SubscriptionState = "EXPIRED"
	StateNotFound SubscriptionState = "NOT_FOUND"
)

// Subscription is the evaluator's view of a billing subscription.
type Subscription struct {
	Status           string
	Interval         string
	CurrentPeriodEnd *time.Time
}

// Grant is the evaluator's view of an unlock grant.
type Grant struct {
	Helpers          []string
	CurrentPeriodEnd *time.Time
	Interval         string
	Type             string
	Amount           float64
}

// AddOn is a currently valid add-on grant, surfaced individually.
type AddOn struct {
	Helpers    []string
	ExpiryDate *time.Time
	Interval   string
	Amount     float64
}

// Stage names the check that rejected an access request.
type Stage string

// Stage values in evaluation order. StagePassed means every check held.
const (
	StageSubscription       Stage = "subscription"
	StageSubscriptionActive Stage = "subscription_active"
	StageSubscriptionExpiry Stage = "subscription_expiry"
	StageHelperUnlocked     Stage = "helper_unlocked"
	StageHelperExpiry       Stage = "helper_expiry"
	StagePassed             Stage = "passed"
)

// AccessDetails carries the diagnostic flags of an access decision.
// Flags after the failing stage keep their zero value.
type AccessDetails struct {
	HasSubscription       bool
	IsSubscriptionActive  bool
	IsSubscriptionExpired bool
	SubscriptionEndDate   *time.Time
	HasHelperUnlocked     bool
	IsHelperExpired       bool
	HelperExpiryDate      *time.Time
	AvailableHelpers      []string
}

// AccessDecision is the result of CheckHelperAccess.
type AccessDecision struct {
	ValidatedUser bool
	Stage         Stage
	Reason        string
	Details       AccessDetails
}
