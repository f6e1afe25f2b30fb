package gym

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrNoPayoutAccount = errors.New("gym has no payout account configured")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateGym(ctx context.Context, name, location, stripeAccountID string) (*Gym, error) {
	g := &Gym{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO gyms (name, location, stripe_account_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, location, stripe_account_id, created_at
	`, name, location, stripeAccountID).StructScan(g)
	return g, err
}

func (r *Repository) GetAllGyms(ctx context.Context) ([]Gym, error) {
	gyms := []Gym{}
	err := r.db.SelectContext(ctx, &gyms, `
		SELECT id, name, location, stripe_account_id, created_at
		FROM gyms
		ORDER BY name
	`)
	return gyms, err
}

func (r *Repository) GetGymByID(ctx context.Context, id int) (*Gym, error) {
	g := &Gym{}
	err := r.db.GetContext(ctx, g, `
		SELECT id, name, location, stripe_account_id, created_at
		FROM gyms
		WHERE id = $1
	`, id)
	return g, err
}

// PayoutAccount returns the gym's Stripe connected-account id, the
// destination for its transfers.
func (r *Repository) PayoutAccount(ctx context.Context, gymID int) (string, error) {
	var account string
	err := r.db.GetContext(ctx, &account, `
		SELECT stripe_account_id FROM gyms WHERE id = $1
	`, gymID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoPayoutAccount
	}
	if err != nil {
		return "", err
	}
	if account == "" {
		return "", ErrNoPayoutAccount
	}
	return account, nil
}
