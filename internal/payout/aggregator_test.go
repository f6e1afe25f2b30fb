package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock collaborators
type MockMembershipSource struct{ mock.Mock }
type MockVisitSource struct{ mock.Mock }
type MockGymSource struct{ mock.Mock }
type MockTransferClient struct{ mock.Mock }
type MockLedger struct{ mock.Mock }
type MockLocker struct{ mock.Mock }

func (m *MockMembershipSource) ListBillableForPeriod(ctx context.Context, from, to time.Time) ([]BillableMembership, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BillableMembership), args.Error(1)
}

func (m *MockVisitSource) VisitCountsForUser(ctx context.Context, userID int, from, to time.Time) ([]VisitCount, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]VisitCount), args.Error(1)
}

func (m *MockGymSource) PayoutAccount(ctx context.Context, gymID int) (string, error) {
	args := m.Called(ctx, gymID)
	return args.String(0), args.Error(1)
}

func (m *MockTransferClient) CreateTransfer(ctx context.Context, destinationAccount string, amountCents int64, currency string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, destinationAccount, amountCents, currency, metadata)
	return args.String(0), args.Error(1)
}

func (m *MockLedger) GetLatestTransfer(ctx context.Context, userID, gymID int, period Period) (*TransferLog, error) {
	args := m.Called(ctx, userID, gymID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TransferLog), args.Error(1)
}

func (m *MockLedger) CreatePendingTransfer(ctx context.Context, userID, gymID int, period Period, baseCents int64, currency string) (*TransferLog, error) {
	args := m.Called(ctx, userID, gymID, period, baseCents, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TransferLog), args.Error(1)
}

func (m *MockLedger) CreateRetryTransfer(ctx context.Context, failed *TransferLog) (*TransferLog, error) {
	args := m.Called(ctx, failed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TransferLog), args.Error(1)
}

func (m *MockLedger) CreateDeferral(ctx context.Context, userID, gymID int, period Period, amountCents int64, currency string) (bool, error) {
	args := m.Called(ctx, userID, gymID, period, amountCents, currency)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) MarkCompleted(ctx context.Context, id int, stripeTransferID string) error {
	return m.Called(ctx, id, stripeTransferID).Error(0)
}

func (m *MockLedger) MarkFailed(ctx context.Context, id int, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *MockLedger) GetCarriedBalance(ctx context.Context, gymID int) (int64, error) {
	args := m.Called(ctx, gymID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLocker) Acquire(ctx context.Context, period Period) (bool, error) {
	args := m.Called(ctx, period)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Release(ctx context.Context, period Period) {
	m.Called(ctx, period)
}

type aggregatorMocks struct {
	memberships *MockMembershipSource
	visits      *MockVisitSource
	gyms        *MockGymSource
	transfers   *MockTransferClient
	ledger      *MockLedger
}

func newTestAggregator(cfg Config) (*Aggregator, *aggregatorMocks) {
	m := &aggregatorMocks{
		memberships: new(MockMembershipSource),
		visits:      new(MockVisitSource),
		gyms:        new(MockGymSource),
		transfers:   new(MockTransferClient),
		ledger:      new(MockLedger),
	}
	agg := NewAggregator(cfg, m.memberships, m.visits, m.gyms, m.transfers, m.ledger, nil)
	return agg, m
}

const testPeriod = Period("2026-08")

func pendingLog(id, userID, gymID int, amount int64) *TransferLog {
	return &TransferLog{
		ID:          id,
		UserID:      userID,
		GymID:       gymID,
		Period:      testPeriod,
		Attempt:     1,
		AmountCents: amount,
		Currency:    "USD",
		Status:      StatusPending,
	}
}

func TestRunHappyPath(t *testing.T) {
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	member := BillableMembership{UserID: 1, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 5}}, nil)

	m.ledger.On("GetLatestTransfer", ctx, 1, 10, testPeriod).Return(nil, nil)
	m.ledger.On("GetCarriedBalance", ctx, 10).Return(int64(0), nil)
	m.ledger.On("CreatePendingTransfer", ctx, 1, 10, testPeriod, int64(450), "USD").
		Return(pendingLog(7, 1, 10, 450), nil)

	m.gyms.On("PayoutAccount", ctx, 10).Return("acct_123", nil)
	m.transfers.On("CreateTransfer", mock.Anything, "acct_123", int64(450), "USD", mock.Anything).
		Return("tr_abc", nil)
	m.ledger.On("MarkCompleted", ctx, 7, "tr_abc").Return(nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Memberships)
	assert.Equal(t, 1, report.TransfersCompleted)
	assert.Equal(t, 0, report.TransfersFailed)
	assert.Equal(t, int64(450), report.TotalPaidCents)
	assert.Empty(t, report.Errors)
	m.ledger.AssertExpectations(t)
	m.transfers.AssertExpectations(t)
}

func TestRunSkipsCompletedTransfers(t *testing.T) {
	// Re-running a period must not touch already-completed transfers.
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	member := BillableMembership{UserID: 1, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 5}}, nil)

	done := pendingLog(7, 1, 10, 450)
	done.Status = StatusCompleted
	m.ledger.On("GetLatestTransfer", ctx, 1, 10, testPeriod).Return(done, nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 1, report.TransfersSkipped)
	assert.Equal(t, 0, report.TransfersCompleted)
	m.transfers.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunDefersBelowMinimum(t *testing.T) {
	cfg := testConfig()
	cfg.MinPayoutCents = 100
	agg, m := newTestAggregator(cfg)
	ctx := context.Background()

	// 60 cents computed, nothing carried: below the 100 minimum.
	member := BillableMembership{UserID: 1, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 1}}, nil) // 90 < 100

	m.ledger.On("GetLatestTransfer", ctx, 1, 10, testPeriod).Return(nil, nil)
	m.ledger.On("GetCarriedBalance", ctx, 10).Return(int64(0), nil)
	m.ledger.On("CreateDeferral", ctx, 1, 10, testPeriod, int64(90), "USD").Return(true, nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 1, report.TransfersDeferred)
	m.transfers.AssertNotCalled(t, "CreateTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.ledger.AssertExpectations(t)
}

func TestRunDeferralIdempotent(t *testing.T) {
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	member := BillableMembership{UserID: 1, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 1}}, nil)

	m.ledger.On("GetLatestTransfer", ctx, 1, 10, testPeriod).Return(nil, nil)
	m.ledger.On("GetCarriedBalance", ctx, 10).Return(int64(0), nil)
	// Second run: the deferred row already exists.
	m.ledger.On("CreateDeferral", ctx, 1, 10, testPeriod, int64(90), "USD").Return(false, nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TransfersDeferred)
	assert.Equal(t, 1, report.TransfersSkipped)
}

func TestRunCarriedBalanceClearsMinimum(t *testing.T) {
	// Scenario: 60 carried from last period, 80 earned now, 140 >= 100.
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	member := BillableMembership{UserID: 1, PlanType: PlanUnlimited, GrossCents: 5000, Currency: "USD"}
	cfgOverride := testConfig()
	cfgOverride.TierOnePayoutCents = 80
	agg = NewAggregator(cfgOverride, m.memberships, m.visits, m.gyms, m.transfers, m.ledger, nil)

	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 1}}, nil) // 80 earned

	m.ledger.On("GetLatestTransfer", ctx, 1, 10, testPeriod).Return(nil, nil)
	m.ledger.On("GetCarriedBalance", ctx, 10).Return(int64(60), nil)
	// The repository claims the carried balance into the row it creates.
	m.ledger.On("CreatePendingTransfer", ctx, 1, 10, testPeriod, int64(80), "USD").
		Return(pendingLog(9, 1, 10, 140), nil)
	m.gyms.On("PayoutAccount", ctx, 10).Return("acct_123", nil)
	m.transfers.On("CreateTransfer", mock.Anything, "acct_123", int64(140), "USD", mock.Anything).
		Return("tr_x", nil)
	m.ledger.On("MarkCompleted", ctx, 9, "tr_x").Return(nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 1, report.TransfersCompleted)
	assert.Equal(t, int64(140), report.TotalPaidCents)
	m.ledger.AssertExpectations(t)
}

func TestRunIsolatesUserFailures(t *testing.T) {
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	members := []BillableMembership{
		{UserID: 1, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"},
		{UserID: 2, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"},
	}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return(members, nil)

	// User 1's visit load blows up; user 2 proceeds.
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return(nil, errors.New("db gone"))
	m.visits.On("VisitCountsForUser", ctx, 2, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 5}}, nil)

	m.ledger.On("GetLatestTransfer", ctx, 2, 10, testPeriod).Return(nil, nil)
	m.ledger.On("GetCarriedBalance", ctx, 10).Return(int64(0), nil)
	m.ledger.On("CreatePendingTransfer", ctx, 2, 10, testPeriod, int64(450), "USD").
		Return(pendingLog(3, 2, 10, 450), nil)
	m.gyms.On("PayoutAccount", ctx, 10).Return("acct_123", nil)
	m.transfers.On("CreateTransfer", mock.Anything, "acct_123", int64(450), "USD", mock.Anything).
		Return("tr_1", nil)
	m.ledger.On("MarkCompleted", ctx, 3, "tr_1").Return(nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 1, report.TransfersCompleted)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 1, report.Errors[0].UserID)
}

func TestRunTransferAPIFailure(t *testing.T) {
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	member := BillableMembership{UserID: 1, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 5}}, nil)

	m.ledger.On("GetLatestTransfer", ctx, 1, 10, testPeriod).Return(nil, nil)
	m.ledger.On("GetCarriedBalance", ctx, 10).Return(int64(0), nil)
	m.ledger.On("CreatePendingTransfer", ctx, 1, 10, testPeriod, int64(450), "USD").
		Return(pendingLog(7, 1, 10, 450), nil)
	m.gyms.On("PayoutAccount", ctx, 10).Return("acct_123", nil)
	m.transfers.On("CreateTransfer", mock.Anything, "acct_123", int64(450), "USD", mock.Anything).
		Return("", errors.New("stripe: connection reset"))
	m.ledger.On("MarkFailed", ctx, 7, "stripe: connection reset").Return(nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TransfersCompleted)
	assert.Equal(t, 1, report.TransfersFailed)
	require.Len(t, report.Errors, 1)
	m.ledger.AssertExpectations(t)
}

func TestRunRetriesFailedTransfer(t *testing.T) {
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	member := BillableMembership{UserID: 1, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 5}}, nil)

	failed := pendingLog(7, 1, 10, 450)
	failed.Status = StatusFailed
	retry := pendingLog(8, 1, 10, 450)
	retry.Attempt = 2

	m.ledger.On("GetLatestTransfer", ctx, 1, 10, testPeriod).Return(failed, nil)
	m.ledger.On("CreateRetryTransfer", ctx, failed).Return(retry, nil)
	m.gyms.On("PayoutAccount", ctx, 10).Return("acct_123", nil)
	m.transfers.On("CreateTransfer", mock.Anything, "acct_123", int64(450), "USD", mock.Anything).
		Return("tr_retry", nil)
	m.ledger.On("MarkCompleted", ctx, 8, "tr_retry").Return(nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 1, report.TransfersCompleted)
	m.ledger.AssertExpectations(t)
}

func TestRunConcurrentCompletionConflict(t *testing.T) {
	// The optimistic update lost: another invocation completed the row first.
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	member := BillableMembership{UserID: 1, PlanType: PlanTiered, GrossCents: 500, Currency: "USD"}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 10, Visits: 5}}, nil)

	m.ledger.On("GetLatestTransfer", ctx, 1, 10, testPeriod).Return(pendingLog(7, 1, 10, 450), nil)
	m.gyms.On("PayoutAccount", ctx, 10).Return("acct_123", nil)
	m.transfers.On("CreateTransfer", mock.Anything, "acct_123", int64(450), "USD", mock.Anything).
		Return("tr_dup", nil)
	m.ledger.On("MarkCompleted", ctx, 7, "tr_dup").Return(ErrConcurrencyConflict)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TransfersCompleted)
	assert.Equal(t, 1, report.TransfersSkipped)
	assert.Empty(t, report.Errors)
}

func TestRunConfigurationErrorIsolated(t *testing.T) {
	agg, m := newTestAggregator(testConfig())
	ctx := context.Background()

	// Gross 2000 cannot cover 2250 of unlimited two-gym cuts.
	member := BillableMembership{UserID: 1, PlanType: PlanUnlimited, GrossCents: 2000, Currency: "USD"}
	m.memberships.On("ListBillableForPeriod", ctx, mock.Anything, mock.Anything).
		Return([]BillableMembership{member}, nil)
	m.visits.On("VisitCountsForUser", ctx, 1, mock.Anything, mock.Anything).
		Return([]VisitCount{{GymID: 1, Visits: 3}, {GymID: 2, Visits: 2}}, nil)

	report, err := agg.Run(ctx, testPeriod)
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Reason, "shortfall")
	m.ledger.AssertNotCalled(t, "CreatePendingTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunLockHeldElsewhere(t *testing.T) {
	agg, m := newTestAggregator(testConfig())
	locker := new(MockLocker)
	agg = NewAggregator(testConfig(), m.memberships, m.visits, m.gyms, m.transfers, m.ledger, locker)
	ctx := context.Background()

	locker.On("Acquire", ctx, testPeriod).Return(false, nil)

	_, err := agg.Run(ctx, testPeriod)
	assert.Equal(t, ErrRunInProgress, err)
	m.memberships.AssertNotCalled(t, "ListBillableForPeriod", mock.Anything, mock.Anything, mock.Anything)
}
