package model

import "time"

// First-access quota defaults for users without a subscription.
const (
	DefaultMonthlyLimit = 5
	DefaultPanelLimit   = 10
)

// UserQuota tracks consumed vs. allowed generation actions for one user,
// reset monthly.
type UserQuota struct {
	UserID       string    `json:"user_id" db:"user_id"`
	MonthlyUsed  int       `json:"monthly_used" db:"monthly_used"`
	MonthlyLimit int       `json:"monthly_limit" db:"monthly_limit"`
	PanelsUsed   int       `json:"panels_used" db:"panels_used"`
	PanelsLimit  int       `json:"panels_limit" db:"panels_limit"`
	ResetAt      time.Time `json:"reset_at" db:"reset_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// NewUserQuota returns the quota row created on first access.
func NewUserQuota(userID string, now time.Time) UserQuota {
	return UserQuota{
		UserID:       userID,
		MonthlyUsed:  0,
		MonthlyLimit: DefaultMonthlyLimit,
		PanelsUsed:   0,
		PanelsLimit:  DefaultPanelLimit,
		ResetAt:      now.AddDate(0, 1, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MonthlyRemaining returns the remaining monthly generation credits.
func (q *UserQuota) MonthlyRemaining() int {
	if r := q.MonthlyLimit - q.MonthlyUsed; r > 0 {
		return r
	}
	return 0
}

// PanelsRemaining returns the remaining panel generation credits.
func (q *UserQuota) PanelsRemaining() int {
	if r := q.PanelsLimit - q.PanelsUsed; r > 0 {
		return r
	}
	return 0
}

// Subscription mirrors the payment provider's subscription state. Only simple
// status updates are tracked; reconciliation stays on the provider side.
type Subscription struct {
	ID                   string    `json:"id" db:"id"`
	UserID               string    `json:"user_id" db:"user_id"`
	PlanID               string    `json:"plan_id" db:"plan_id"`
	StripeSubscriptionID string    `json:"stripe_subscription_id" db:"stripe_subscription_id"`
	Status               string    `json:"status" db:"status"`
	CurrentPeriodEnd     time.Time `json:"current_period_end" db:"current_period_end"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}
