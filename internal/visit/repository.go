package visit

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"fitpass/internal/payout"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, userID, gymID, membershipID, creditsSpent int) (*Visit, error) {
	v := &Visit{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO visits (user_id, gym_id, membership_id, credits_spent, visited_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, gym_id, membership_id, credits_spent, visited_at
	`, userID, gymID, membershipID, creditsSpent).StructScan(v)
	return v, err
}

// VisitCountsForUser groups a user's visits per gym inside the window. This is
// the shape the payout aggregator consumes.
func (r *Repository) VisitCountsForUser(ctx context.Context, userID int, from, to time.Time) ([]payout.VisitCount, error) {
	counts := []payout.VisitCount{}
	err := r.db.SelectContext(ctx, &counts, `
		SELECT gym_id, COUNT(*) AS visits
		FROM visits
		WHERE user_id = $1 AND visited_at >= $2 AND visited_at < $3
		GROUP BY gym_id
		ORDER BY gym_id
	`, userID, from, to)
	return counts, err
}

func (r *Repository) ListByUser(ctx context.Context, userID, limit int) ([]Visit, error) {
	visits := []Visit{}
	err := r.db.SelectContext(ctx, &visits, `
		SELECT id, user_id, gym_id, membership_id, credits_spent, visited_at
		FROM visits
		WHERE user_id = $1
		ORDER BY visited_at DESC
		LIMIT $2
	`, userID, limit)
	return visits, err
}
