package plan

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const planColumns = `id, code, name, type, credits_per_period, price_cents, currency, interval, stripe_price_id, active, created_at`

func (r *Repository) ListActive(ctx context.Context) ([]Plan, error) {
	plans := []Plan{}
	err := r.db.SelectContext(ctx, &plans, `
		SELECT `+planColumns+`
		FROM plans
		WHERE active = TRUE
		ORDER BY price_cents
	`)
	return plans, err
}

func (r *Repository) GetByID(ctx context.Context, id int) (*Plan, error) {
	p := &Plan{}
	err := r.db.GetContext(ctx, p, `
		SELECT `+planColumns+`
		FROM plans
		WHERE id = $1
	`, id)
	return p, err
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*Plan, error) {
	p := &Plan{}
	err := r.db.GetContext(ctx, p, `
		SELECT `+planColumns+`
		FROM plans
		WHERE code = $1 AND active = TRUE
	`, code)
	return p, err
}
