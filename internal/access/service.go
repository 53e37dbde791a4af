// Package access loads billing snapshots and runs the entitlement checks
// behind the HTTP handlers.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soldierhq/helpergate/internal/entitlement"
	"github.com/soldierhq/helpergate/internal/models"
)

// ErrValidation reports missing or malformed caller input.
var ErrValidation = errors.New("access: validation failed")

// BillingReader supplies billing snapshots.
// FindSubscriptionByUser returns (nil, nil) when the user has no subscription.
// FindGrantsBySubscription returns grants newest first.
type BillingReader interface {
	FindSubscriptionByUser(ctx context.Context, userID string) (*models.BillingSubscription, error)
	FindGrantsBySubscription(ctx context.Context, subscriptionID uint64) ([]models.UnlockGrant, error)
}

// SummaryReader supplies the rows behind the session subscription summary.
type SummaryReader interface {
	FindUser(ctx context.Context, clerkID string) (*models.User, error)
	FindActiveSubscriptionByUser(ctx context.Context, userID string) (*models.BillingSubscription, error)
	FindGrantsBySubscription(ctx context.Context, subscriptionID uint64) ([]models.UnlockGrant, error)
}

// Service evaluates entitlements against freshly loaded billing data.
type Service struct {
	billing BillingReader
	summary SummaryReader
	nowFn   func() time.Time
}

// NewService constructs a Service. summary may be nil when Summary is unused.
func NewService(billing BillingReader, summary SummaryReader, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{billing: billing, summary: summary, nowFn: nowFn}
}

type snapshot struct {
	record *models.BillingSubscription
	sub    *entitlement.Subscription
	grants []entitlement.Grant
}

func (s *Service) load(ctx context.Context, userID string) (snapshot, error) {
	if s == nil || s.billing == nil {
		return snapshot{}, fmt.Errorf("access: service not initialized")
	}
	record, errFind := s.billing.FindSubscriptionByUser(ctx, userID)
	if errFind != nil {
		return snapshot{}, fmt.Errorf("access: load subscription: %w", errFind)
	}
	if record == nil {
		return snapshot{grants: []entitlement.Grant{}}, nil
	}
	rows, errGrants := s.billing.FindGrantsBySubscription(ctx, record.ID)
	if errGrants != nil {
		return snapshot{}, fmt.Errorf("access: load grants: %w", errGrants)
	}
	grants, errConvert := ToGrants(rows)
	if errConvert != nil {
		return snapshot{}, fmt.Errorf("access: load grants: %w", errConvert)
	}
	return snapshot{
		record: record,
		sub:    ToSubscription(record),
		grants: grants,
	}, nil
}

// CheckHelperAccess decides whether userID may use helperID right now.
// Denials are returned as decisions; only load failures return errors.
func (s *Service) CheckHelperAccess(ctx context.Context, userID, helperID string) (entitlement.AccessDecision, error) {
	userID = strings.TrimSpace(userID)
	helperID = strings.TrimSpace(helperID)
	if userID == "" || helperID == "" {
		return entitlement.AccessDecision{}, fmt.Errorf("%w: user id and helper id are required", ErrValidation)
	}
	snap, errLoad := s.load(ctx, userID)
	if errLoad != nil {
		return entitlement.AccessDecision{}, errLoad
	}
	return entitlement.CheckHelperAccess(snap.sub, snap.grants, helperID, s.nowFn()), nil
}

// UnlockedHelpers lists every helper the user can currently use, duplicates
// included.
func (s *Service) UnlockedHelpers(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	snap, errLoad := s.load(ctx, userID)
	if errLoad != nil {
		return nil, errLoad
	}
	return entitlement.CollectUnlockedHelpers(snap.grants, s.nowFn()), nil
}

// Status is the unlocked-helper view of one user.
type Status struct {
	UnlockedHelpers []string
	State           entitlement.SubscriptionState
}

// SubscriptionStatus reports the user's unlocked helpers and subscription state.
func (s *Service) SubscriptionStatus(ctx context.Context, userID string) (Status, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Status{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	snap, errLoad := s.load(ctx, userID)
	if errLoad != nil {
		return Status{}, errLoad
	}
	now := s.nowFn()
	return Status{
		UnlockedHelpers: entitlement.CollectUnlockedHelpers(snap.grants, now),
		State:           entitlement.EvaluateSubscriptionStatus(snap.sub, now),
	}, nil
}

// Summary is the session view of the user's active subscription.
type Summary struct {
	UserFound    bool
	Subscription *models.BillingSubscription
	BaseHelpers  []string
	AddOns       []entitlement.AddOn
}

// SubscriptionSummary loads the newest ACTIVE subscription and splits its
// valid grants into base helpers and add-ons.
func (s *Service) SubscriptionSummary(ctx context.Context, userID string) (Summary, error) {
	if s == nil || s.summary == nil {
		return Summary{}, fmt.Errorf("access: summary reader not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Summary{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	user, errUser := s.summary.FindUser(ctx, userID)
	if errUser != nil {
		return Summary{}, fmt.Errorf("access: load user: %w", errUser)
	}
	if user == nil {
		return Summary{}, nil
	}
	record, errSub := s.summary.FindActiveSubscriptionByUser(ctx, userID)
	if errSub != nil {
		return Summary{}, fmt.Errorf("access: load subscription: %w", errSub)
	}
	if record == nil {
		return Summary{UserFound: true}, nil
	}
	rows, errGrants := s.summary.FindGrantsBySubscription(ctx, record.ID)
	if errGrants != nil {
		return Summary{}, fmt.Errorf("access: load grants: %w", errGrants)
	}
	grants, errConvert := ToGrants(rows)
	if errConvert != nil {
		return Summary{}, fmt.Errorf("access: load grants: %w", errConvert)
	}
	base, addOns := entitlement.PartitionByAddOnType(grants, s.nowFn())
	return Summary{
		UserFound:    true,
		Subscription: record,
		BaseHelpers:  base,
		AddOns:       addOns,
	}, nil
}

// ToSubscription converts a stored subscription into the evaluator's view.
func ToSubscription(record *models.BillingSubscription) *entitlement.Subscription {
	if record == nil {
		return nil
	}
	return &entitlement.Subscription{
		Status:           string(record.Status),
		Interval:         string(record.Interval),
		CurrentPeriodEnd: record.CurrentPeriodEnd,
	}
}

// ToGrants converts stored grants into the evaluator's view, keeping order.
func ToGrants(rows []models.UnlockGrant) ([]entitlement.Grant, error) {
	out := make([]entitlement.Grant, 0, len(rows))
	for i := range rows {
		helpers, errHelpers := rows[i].Helpers()
		if errHelpers != nil {
			return nil, errHelpers
		}
		out = append(out, entitlement.Grant{
			Helpers:          helpers,
			CurrentPeriodEnd: rows[i].CurrentPeriodEnd,
			Interval:         string(rows[i].Interval),
			Type:             string(rows[i].Type),
			Amount:           rows[i].Amount,
		})
	}
	return out, nil
}
