package membership

import (
	"time"

	"fitpass/internal/payout"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusCanceled   Status = "canceled"
	StatusIncomplete Status = "incomplete"
	StatusPastDue    Status = "past_due"
)

// Membership links a user to a plan and mirrors the Stripe subscription
// lifecycle. Only the billing subsystem mutates it: webhook events move the
// status, check-ins consume credits.
type Membership struct {
	ID                   int       `db:"id" json:"id"`
	UserID               int       `db:"user_id" json:"user_id"`
	PlanID               int       `db:"plan_id" json:"plan_id"`
	StripeSubscriptionID *string   `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	Status               Status    `db:"status" json:"status"`
	CreditsRemaining     int       `db:"credits_remaining" json:"credits_remaining"`
	CurrentPeriodStart   time.Time `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd     time.Time `db:"current_period_end" json:"current_period_end"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// MembershipWithPlan carries the plan columns the check-in and payout flows
// need without a second round trip.
type MembershipWithPlan struct {
	Membership
	PlanCode         string          `db:"plan_code" json:"plan_code"`
	PlanType         payout.PlanType `db:"plan_type" json:"plan_type"`
	PriceCents       int64           `db:"price_cents" json:"price_cents"`
	Currency         string          `db:"currency" json:"currency"`
	CreditsPerPeriod int             `db:"credits_per_period" json:"credits_per_period"`
}

type SubscribeRequest struct {
	PlanCode string `json:"plan_code" binding:"required"`
}
