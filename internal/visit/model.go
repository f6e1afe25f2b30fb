package visit

import "time"

// Visit is one check-in at a gym. CreditsSpent is 0 for unlimited plans and
// the per-visit cost (normally 1) for credit plans.
type Visit struct {
	ID           int       `db:"id" json:"id"`
	UserID       int       `db:"user_id" json:"user_id"`
	GymID        int       `db:"gym_id" json:"gym_id"`
	MembershipID int       `db:"membership_id" json:"membership_id"`
	CreditsSpent int       `db:"credits_spent" json:"credits_spent"`
	VisitedAt    time.Time `db:"visited_at" json:"visited_at"`
}
