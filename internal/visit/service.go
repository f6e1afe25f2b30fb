package visit

import (
	"context"
	"database/sql"
	"errors"

	"fitpass/internal/gym"
	"fitpass/internal/membership"
	"fitpass/internal/metrics"
	"fitpass/internal/payout"
)

var ErrGymNotFound = errors.New("gym not found")

// creditsPerVisit is what a single check-in costs on a credit plan.
const creditsPerVisit = 1

type MembershipSource interface {
	GetCurrent(ctx context.Context, userID int) (*membership.MembershipWithPlan, error)
}

type CreditConsumer interface {
	ConsumeCredits(ctx context.Context, membershipID, credits int) error
}

type GymSource interface {
	GetGymByID(ctx context.Context, id int) (*gym.Gym, error)
}

type Store interface {
	Create(ctx context.Context, userID, gymID, membershipID, creditsSpent int) (*Visit, error)
	ListByUser(ctx context.Context, userID, limit int) ([]Visit, error)
}

type Service interface {
	CheckIn(ctx context.Context, userID, gymID int) (*Visit, error)
	History(ctx context.Context, userID, limit int) ([]Visit, error)
}

type service struct {
	store       Store
	memberships MembershipSource
	credits     CreditConsumer
	gyms        GymSource
}

func NewService(store Store, memberships MembershipSource, credits CreditConsumer, gyms GymSource) Service {
	return &service{
		store:       store,
		memberships: memberships,
		credits:     credits,
		gyms:        gyms,
	}
}

// CheckIn records a visit. Credit plans spend one credit first, so a user out
// of credits is turned away before any row is written.
func (s *service) CheckIn(ctx context.Context, userID, gymID int) (*Visit, error) {
	m, err := s.memberships.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.gyms.GetGymByID(ctx, gymID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGymNotFound
		}
		return nil, err
	}

	spent := 0
	if m.PlanType == payout.PlanTiered {
		if err := s.credits.ConsumeCredits(ctx, m.ID, creditsPerVisit); err != nil {
			return nil, err
		}
		spent = creditsPerVisit
	}

	v, err := s.store.Create(ctx, userID, gymID, m.ID, spent)
	if err != nil {
		return nil, err
	}

	metrics.RecordCheckIn(string(m.PlanType))
	return v, nil
}

func (s *service) History(ctx context.Context, userID, limit int) ([]Visit, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}
