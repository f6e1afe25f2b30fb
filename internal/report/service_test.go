package report

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"fitpass/internal/logger"
	"fitpass/internal/payout"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

func newTestService(rdb *redis.Client) *Service {
	return &Service{
		redis:    rdb,
		opsEmail: "ops@fitpass.io",
		from:     "noreply@fitpass.io",
		fromName: "FitPass",
		smtpHost: "smtp.test.com",
		smtpPort: "587",
		smtpUser: "test@example.com",
		smtpPass: "password",
	}
}

func sampleReport() payout.RunReport {
	return payout.RunReport{
		Period:             payout.Period("2025-07"),
		Memberships:        12,
		TransfersCompleted: 10,
		TransfersFailed:    1,
		TransfersDeferred:  1,
		TotalPaidCents:     48200,
		StartedAt:          time.Now().Add(-time.Minute),
		FinishedAt:         time.Now(),
	}
}

func TestEnqueue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("payout_reports", `.*`).SetVal(1)

	svc := newTestService(db)

	err := svc.Enqueue(ctx, sampleReport())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueRedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("payout_reports", `.*`).SetErr(assert.AnError)

	svc := newTestService(db)

	err := svc.Enqueue(ctx, sampleReport())
	assert.Error(t, err)
}

func TestQueueLength(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.ExpectLLen("payout_reports").SetVal(3)

	svc := newTestService(db)

	assert.Equal(t, int64(3), svc.QueueLength(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
