package entitlement

import (
	"fmt"
	"strings"
	"time"
)

// Reasons reported with access decisions.
const (
	ReasonNoSubscription = "No active subscription found for this user"
	ReasonInactive       = "Subscription is not active or has expired"
)

// HelperNotUnlockedReason reports a helper missing from every valid grant.
func HelperNotUnlockedReason(helperID string) string {
	return fmt.Sprintf("Helper '%s' is not unlocked for this user", helperID)
}

// HelperExpiredReason reports a helper whose grant has lapsed.
func HelperExpiredReason(helperID string) string {
	return fmt.Sprintf("Helper '%s' access has expired", helperID)
}

// GrantedReason reports a successful check.
func GrantedReason(helperID string) string {
	return fmt.Sprintf("User has valid access to helper '%s'", helperID)
}

func isLifetime(interval string) bool {
	return strings.EqualFold(strings.TrimSpace(interval), IntervalLifetime)
}

// unexpired reports now < end. A missing end never validates.
func unexpired(end *time.Time, now time.Time) bool {
	if end == nil {
		return false
	}
	return now.Before(*end)
}

func grantValid(g Grant, now time.Time) bool {
	return isLifetime(g.Interval) || unexpired(g.CurrentPeriodEnd, now)
}

// EvaluateSubscriptionStatus classifies a subscription at now.
// Lifetime subscriptions are valid regardless of status and stored expiry.
// A subscription whose period ends at or before now is expired.
func EvaluateSubscriptionStatus(sub *Subscription, now time.Time) SubscriptionState {
	if sub == nil {
		return StateNotFound
	}
	if isLifetime(sub.Interval) {
		return StateValid
	}
	if !unexpired(sub.CurrentPeriodEnd, now) {
		return StateExpired
	}
	if sub.Status == StatusActive {
		return StateValid
	}
	return StateNotFound
}

// CollectUnlockedHelpers concatenates the helpers of every grant valid at now.
// Duplicates across grants are preserved. The result is never nil.
func CollectUnlockedHelpers(grants []Grant, now time.Time) []string {
	out := make([]string, 0)
	for _, g := range grants {
		if !grantValid(g, now) {
			continue
		}
		out = append(out, g.Helpers...)
	}
	return out
}

// PartitionByAddOnType splits the grants valid at now into a flat list of
// base-plan helpers and one AddOn entry per add-on grant.
func PartitionByAddOnType(grants []Grant, now time.Time) ([]string, []AddOn) {
	base := make([]string, 0)
	addOns := make([]AddOn, 0)
	for _, g := range grants {
		if !grantValid(g, now) {
			continue
		}
		switch g.Type {
		case GrantTypeAddOn:
			helpers := make([]string, len(g.Helpers))
			copy(helpers, g.Helpers)
			addOns = append(addOns, AddOn{
				Helpers:    helpers,
				ExpiryDate: g.CurrentPeriodEnd,
				Interval:   g.Interval,
				Amount:     g.Amount,
			})
		default:
			base = append(base, g.Helpers...)
		}
	}
	return base, addOns
}

// CheckHelperAccess runs the access checks in order and stops at the first
// failure. Grants are scanned in the order given; the first grant listing
// helperID decides helper expiry.
func CheckHelperAccess(sub *Subscription, grants []Grant, helperID string, now time.Time) AccessDecision {
	decision := AccessDecision{}

	if sub == nil {
		decision.Stage = StageSubscription
		decision.Reason = ReasonNoSubscription
		return decision
	}
	decision.Details.HasSubscription = true
	decision.Details.SubscriptionEndDate = sub.CurrentPeriodEnd
	lifetime := isLifetime(sub.Interval)

	if !lifetime && sub.Status != StatusActive {
		decision.Stage = StageSubscriptionActive
		decision.Reason = ReasonInactive
		return decision
	}
	decision.Details.IsSubscriptionActive = true

	if !lifetime && !unexpired(sub.CurrentPeriodEnd, now) {
		decision.Details.IsSubscriptionExpired = true
		decision.Stage = StageSubscriptionExpiry
		decision.Reason = ReasonInactive
		return decision
	}

	available := CollectUnlockedHelpers(grants, now)
	decision.Details.AvailableHelpers = available
	if !containsHelper(available, helperID) {
		decision.Stage = StageHelperUnlocked
		decision.Reason = HelperNotUnlockedReason(helperID)
		return decision
	}
	decision.Details.HasHelperUnlocked = true

	match, found := firstGrantWithHelper(grants, helperID)
	if found {
		decision.Details.HelperExpiryDate = match.CurrentPeriodEnd
	}
	if !found || !grantValid(match, now) {
		decision.Details.IsHelperExpired = true
		decision.Stage = StageHelperExpiry
		decision.Reason = HelperExpiredReason(helperID)
		return decision
	}

	decision.ValidatedUser = true
	decision.Stage = StagePassed
	decision.Reason = GrantedReason(helperID)
	return decision
}

func containsHelper(helpers []string, helperID string) bool {
	for _, h := range helpers {
		if h == helperID {
			return true
		}
	}
	return false
}

func firstGrantWithHelper(grants []Grant, helperID string) (Grant, bool) {
	for _, g := range grants {
		if containsHelper(g.Helpers, helperID) {
			return g, true
		}
	}
	return Grant{}, false
}

// Dedupe returns helpers without repeats, keeping first occurrence order.
func Dedupe(helpers []string) []string {
	out := make([]string, 0, len(helpers))
	seen := make(map[string]struct{}, len(helpers))
	for _, h := range helpers {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
