package membership

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"fitpass/internal/payout"
)

var (
	ErrNoCredits = errors.New("no credits remaining")
	ErrNotFound  = errors.New("membership not found")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const membershipColumns = `m.id, m.user_id, m.plan_id, m.stripe_subscription_id, m.status,
	m.credits_remaining, m.current_period_start, m.current_period_end, m.created_at, m.updated_at`

const planJoinColumns = membershipColumns + `,
	p.code AS plan_code, p.type AS plan_type, p.price_cents, p.currency, p.credits_per_period`

func (r *Repository) Create(ctx context.Context, userID, planID int, stripeSubID string, credits int, periodStart, periodEnd time.Time) (*Membership, error) {
	m := &Membership{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO memberships (user_id, plan_id, stripe_subscription_id, status, credits_remaining, current_period_start, current_period_end)
		VALUES ($1, $2, $3, 'active', $4, $5, $6)
		RETURNING id, user_id, plan_id, stripe_subscription_id, status, credits_remaining, current_period_start, current_period_end, created_at, updated_at
	`, userID, planID, stripeSubID, credits, periodStart, periodEnd).StructScan(m)
	return m, err
}

// GetCurrentByUser returns the user's active membership with plan details.
func (r *Repository) GetCurrentByUser(ctx context.Context, userID int) (*MembershipWithPlan, error) {
	m := &MembershipWithPlan{}
	err := r.db.GetContext(ctx, m, `
		SELECT `+planJoinColumns+`
		FROM memberships m
		JOIN plans p ON p.id = m.plan_id
		WHERE m.user_id = $1
		  AND m.status = 'active'
		  AND m.current_period_start <= NOW()
		  AND m.current_period_end >= NOW()
		ORDER BY m.created_at DESC
		LIMIT 1
	`, userID)
	return m, err
}

// ListBillableForPeriod returns one billable row per membership active at any
// point in the window, in the shape the payout aggregator consumes.
func (r *Repository) ListBillableForPeriod(ctx context.Context, from, to time.Time) ([]payout.BillableMembership, error) {
	rows := []struct {
		UserID     int             `db:"user_id"`
		PlanType   payout.PlanType `db:"plan_type"`
		GrossCents int64           `db:"price_cents"`
		Currency   string          `db:"currency"`
	}{}

	err := r.db.SelectContext(ctx, &rows, `
		SELECT m.user_id, p.type AS plan_type, p.price_cents, p.currency
		FROM memberships m
		JOIN plans p ON p.id = m.plan_id
		WHERE m.status = 'active'
		  AND m.current_period_start < $2
		  AND m.current_period_end > $1
		ORDER BY m.user_id
	`, from, to)
	if err != nil {
		return nil, err
	}

	billable := make([]payout.BillableMembership, 0, len(rows))
	for _, row := range rows {
		billable = append(billable, payout.BillableMembership{
			UserID:     row.UserID,
			PlanType:   row.PlanType,
			GrossCents: row.GrossCents,
			Currency:   row.Currency,
		})
	}
	return billable, nil
}

// ConsumeCredits decrements optimistically: the row must still hold enough
// credits at update time, so two concurrent check-ins cannot overspend.
func (r *Repository) ConsumeCredits(ctx context.Context, membershipID, credits int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE memberships
		SET credits_remaining = credits_remaining - $2, updated_at = NOW()
		WHERE id = $1 AND credits_remaining >= $2
	`, membershipID, credits)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoCredits
	}
	return nil
}

// UpdateStatusBySubscription applies a lifecycle event from Stripe.
func (r *Repository) UpdateStatusBySubscription(ctx context.Context, stripeSubID string, status Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE memberships
		SET status = $2, updated_at = NOW()
		WHERE stripe_subscription_id = $1
	`, stripeSubID, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RenewBySubscription rolls the membership into a new billing period and
// refreshes its credit allowance.
func (r *Repository) RenewBySubscription(ctx context.Context, stripeSubID string, periodStart, periodEnd time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE memberships m
		SET status = 'active',
		    credits_remaining = p.credits_per_period,
		    current_period_start = $2,
		    current_period_end = $3,
		    updated_at = NOW()
		FROM plans p
		WHERE m.stripe_subscription_id = $1 AND p.id = m.plan_id
	`, stripeSubID, periodStart, periodEnd)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
