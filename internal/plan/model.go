package plan

import (
	"time"

	"fitpass/internal/payout"
)

// Plan is one row of the pricing catalog. Rows are immutable: a price change
// means a new row and deactivating the old one, so historical memberships keep
// pointing at the terms they were sold under.
type Plan struct {
	ID               int             `db:"id" json:"id"`
	Code             string          `db:"code" json:"code"`
	Name             string          `db:"name" json:"name"`
	Type             payout.PlanType `db:"type" json:"type"`
	CreditsPerPeriod int             `db:"credits_per_period" json:"credits_per_period"`
	PriceCents       int64           `db:"price_cents" json:"price_cents"`
	Currency         string          `db:"currency" json:"currency"`
	Interval         string          `db:"interval" json:"interval"`
	StripePriceID    string          `db:"stripe_price_id" json:"stripe_price_id"`
	Active           bool            `db:"active" json:"active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
