package membership

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fitpass/internal/payout"
	"fitpass/internal/plan"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) Create(ctx context.Context, userID, planID int, stripeSubID string, credits int, periodStart, periodEnd time.Time) (*Membership, error) {
	args := m.Called(ctx, userID, planID, stripeSubID, credits, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Membership), args.Error(1)
}

func (m *mockStore) GetCurrentByUser(ctx context.Context, userID int) (*MembershipWithPlan, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MembershipWithPlan), args.Error(1)
}

func (m *mockStore) UpdateStatusBySubscription(ctx context.Context, stripeSubID string, status Status) error {
	return m.Called(ctx, stripeSubID, status).Error(0)
}

type mockPlans struct{ mock.Mock }

func (m *mockPlans) GetByCode(ctx context.Context, code string) (*plan.Plan, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*plan.Plan), args.Error(1)
}

type mockCustomers struct{ mock.Mock }

func (m *mockCustomers) StripeCustomerID(ctx context.Context, userID int) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

type mockStripe struct{ mock.Mock }

func (m *mockStripe) CreateSubscription(ctx context.Context, customerID, priceID string) (*StripeSubscription, error) {
	args := m.Called(ctx, customerID, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StripeSubscription), args.Error(1)
}

func (m *mockStripe) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func creditsPlan() *plan.Plan {
	return &plan.Plan{
		ID:               1,
		Code:             "credits_10",
		Name:             "10 Credits",
		Type:             payout.PlanTiered,
		CreditsPerPeriod: 10,
		PriceCents:       500,
		Currency:         "USD",
		StripePriceID:    "price_credits_10",
	}
}

func TestSubscribeCreatesMembership(t *testing.T) {
	store := new(mockStore)
	plans := new(mockPlans)
	customers := new(mockCustomers)
	stripe := new(mockStripe)
	svc := NewService(store, plans, customers, stripe)

	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, sql.ErrNoRows)
	plans.On("GetByCode", mock.Anything, "credits_10").Return(creditsPlan(), nil)
	customers.On("StripeCustomerID", mock.Anything, 42).Return("cus_42", nil)
	stripe.On("CreateSubscription", mock.Anything, "cus_42", "price_credits_10").
		Return(&StripeSubscription{ID: "sub_42", PeriodStart: start, PeriodEnd: end}, nil)
	store.On("Create", mock.Anything, 42, 1, "sub_42", 10, start, end).
		Return(&Membership{ID: 7, UserID: 42, PlanID: 1, Status: StatusActive, CreditsRemaining: 10}, nil)

	m, err := svc.Subscribe(context.Background(), 42, "credits_10")
	require.NoError(t, err)
	assert.Equal(t, 10, m.CreditsRemaining)
	store.AssertExpectations(t)
	stripe.AssertExpectations(t)
}

func TestSubscribeRejectsExistingMembership(t *testing.T) {
	store := new(mockStore)
	stripe := new(mockStripe)
	svc := NewService(store, new(mockPlans), new(mockCustomers), stripe)

	store.On("GetCurrentByUser", mock.Anything, 42).
		Return(&MembershipWithPlan{Membership: Membership{ID: 7, Status: StatusActive}}, nil)

	_, err := svc.Subscribe(context.Background(), 42, "unlimited")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
	stripe.AssertNotCalled(t, "CreateSubscription")
}

func TestSubscribeUnknownPlan(t *testing.T) {
	store := new(mockStore)
	plans := new(mockPlans)
	svc := NewService(store, plans, new(mockCustomers), new(mockStripe))

	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, sql.ErrNoRows)
	plans.On("GetByCode", mock.Anything, "bogus").Return(nil, sql.ErrNoRows)

	_, err := svc.Subscribe(context.Background(), 42, "bogus")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestSubscribeRequiresBillingCustomer(t *testing.T) {
	store := new(mockStore)
	plans := new(mockPlans)
	customers := new(mockCustomers)
	stripe := new(mockStripe)
	svc := NewService(store, plans, customers, stripe)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, sql.ErrNoRows)
	plans.On("GetByCode", mock.Anything, "credits_10").Return(creditsPlan(), nil)
	customers.On("StripeCustomerID", mock.Anything, 42).Return("", nil)

	_, err := svc.Subscribe(context.Background(), 42, "credits_10")
	assert.ErrorIs(t, err, ErrNoStripeCustomer)
	stripe.AssertNotCalled(t, "CreateSubscription")
}

func TestSubscribeStripeFailureLeavesNoRow(t *testing.T) {
	store := new(mockStore)
	plans := new(mockPlans)
	customers := new(mockCustomers)
	stripe := new(mockStripe)
	svc := NewService(store, plans, customers, stripe)

	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, sql.ErrNoRows)
	plans.On("GetByCode", mock.Anything, "credits_10").Return(creditsPlan(), nil)
	customers.On("StripeCustomerID", mock.Anything, 42).Return("cus_42", nil)
	stripe.On("CreateSubscription", mock.Anything, "cus_42", "price_credits_10").
		Return(nil, errors.New("card declined"))

	_, err := svc.Subscribe(context.Background(), 42, "credits_10")
	require.Error(t, err)
	store.AssertNotCalled(t, "Create")
}

func TestCancelActiveMembership(t *testing.T) {
	store := new(mockStore)
	stripe := new(mockStripe)
	svc := NewService(store, new(mockPlans), new(mockCustomers), stripe)

	subID := "sub_42"
	store.On("GetCurrentByUser", mock.Anything, 42).
		Return(&MembershipWithPlan{Membership: Membership{ID: 7, StripeSubscriptionID: &subID, Status: StatusActive}}, nil)
	stripe.On("CancelSubscription", mock.Anything, "sub_42").Return(nil)
	store.On("UpdateStatusBySubscription", mock.Anything, "sub_42", StatusCanceled).Return(nil)

	err := svc.Cancel(context.Background(), 42)
	require.NoError(t, err)
	store.AssertExpectations(t)
	stripe.AssertExpectations(t)
}

func TestCancelWithoutMembership(t *testing.T) {
	store := new(mockStore)
	svc := NewService(store, new(mockPlans), new(mockCustomers), new(mockStripe))

	store.On("GetCurrentByUser", mock.Anything, 42).Return(nil, sql.ErrNoRows)

	err := svc.Cancel(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNoActiveMembership)
}

func TestCancelKeepsStatusOnStripeFailure(t *testing.T) {
	store := new(mockStore)
	stripe := new(mockStripe)
	svc := NewService(store, new(mockPlans), new(mockCustomers), stripe)

	subID := "sub_42"
	store.On("GetCurrentByUser", mock.Anything, 42).
		Return(&MembershipWithPlan{Membership: Membership{ID: 7, StripeSubscriptionID: &subID, Status: StatusActive}}, nil)
	stripe.On("CancelSubscription", mock.Anything, "sub_42").Return(errors.New("stripe down"))

	err := svc.Cancel(context.Background(), 42)
	require.Error(t, err)
	store.AssertNotCalled(t, "UpdateStatusBySubscription")
}
