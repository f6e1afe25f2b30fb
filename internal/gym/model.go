package gym

import "time"

type Gym struct {
	ID              int       `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Location        string    `db:"location" json:"location"`
	StripeAccountID string    `db:"stripe_account_id" json:"stripe_account_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type CreateGymRequest struct {
	Name            string `json:"name" binding:"required"`
	Location        string `json:"location" binding:"required"`
	StripeAccountID string `json:"stripe_account_id" binding:"required"`
}
