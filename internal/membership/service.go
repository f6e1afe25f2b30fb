package membership

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fitpass/internal/metrics"
	"fitpass/internal/plan"
)

var (
	ErrNoActiveMembership = errors.New("no active membership")
	ErrAlreadySubscribed  = errors.New("user already has an active membership")
	ErrPlanNotFound       = errors.New("plan not found")
	ErrNoStripeCustomer   = errors.New("user has no billing customer yet")
)

// StripeSubscription is what the billing client reports back after creating a
// subscription.
type StripeSubscription struct {
	ID          string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type SubscriptionClient interface {
	CreateSubscription(ctx context.Context, customerID, priceID string) (*StripeSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type PlanSource interface {
	GetByCode(ctx context.Context, code string) (*plan.Plan, error)
}

type CustomerSource interface {
	StripeCustomerID(ctx context.Context, userID int) (string, error)
}

type Store interface {
	Create(ctx context.Context, userID, planID int, stripeSubID string, credits int, periodStart, periodEnd time.Time) (*Membership, error)
	GetCurrentByUser(ctx context.Context, userID int) (*MembershipWithPlan, error)
	UpdateStatusBySubscription(ctx context.Context, stripeSubID string, status Status) error
}

type Service interface {
	GetCurrent(ctx context.Context, userID int) (*MembershipWithPlan, error)
	Subscribe(ctx context.Context, userID int, planCode string) (*Membership, error)
	Cancel(ctx context.Context, userID int) error
}

type service struct {
	store     Store
	plans     PlanSource
	customers CustomerSource
	stripe    SubscriptionClient
}

func NewService(store Store, plans PlanSource, customers CustomerSource, stripe SubscriptionClient) Service {
	return &service{
		store:     store,
		plans:     plans,
		customers: customers,
		stripe:    stripe,
	}
}

func (s *service) GetCurrent(ctx context.Context, userID int) (*MembershipWithPlan, error) {
	m, err := s.store.GetCurrentByUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveMembership
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) Subscribe(ctx context.Context, userID int, planCode string) (*Membership, error) {
	if _, err := s.GetCurrent(ctx, userID); err == nil {
		return nil, ErrAlreadySubscribed
	} else if !errors.Is(err, ErrNoActiveMembership) {
		return nil, err
	}

	p, err := s.plans.GetByCode(ctx, planCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	customerID, err := s.customers.StripeCustomerID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, ErrNoStripeCustomer
	}

	sub, err := s.stripe.CreateSubscription(ctx, customerID, p.StripePriceID)
	if err != nil {
		return nil, err
	}

	m, err := s.store.Create(ctx, userID, p.ID, sub.ID, p.CreditsPerPeriod, sub.PeriodStart, sub.PeriodEnd)
	if err != nil {
		return nil, err
	}

	metrics.RecordMembership(string(p.Type))
	return m, nil
}

func (s *service) Cancel(ctx context.Context, userID int) error {
	current, err := s.GetCurrent(ctx, userID)
	if err != nil {
		return err
	}

	if current.StripeSubscriptionID != nil {
		if err := s.stripe.CancelSubscription(ctx, *current.StripeSubscriptionID); err != nil {
			return err
		}
		return s.store.UpdateStatusBySubscription(ctx, *current.StripeSubscriptionID, StatusCanceled)
	}

	return ErrNoActiveMembership
}
