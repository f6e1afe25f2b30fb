package payout

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLockAcquire(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRunLock(client, 10*time.Minute)
	ctx := context.Background()

	mock.ExpectSetNX("payout:run:2026-08", "1", 10*time.Minute).SetVal(true)

	acquired, err := lock.Acquire(ctx, Period("2026-08"))
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLockAlreadyHeld(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRunLock(client, 10*time.Minute)
	ctx := context.Background()

	mock.ExpectSetNX("payout:run:2026-08", "1", 10*time.Minute).SetVal(false)

	acquired, err := lock.Acquire(ctx, Period("2026-08"))
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestRunLockRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRunLock(client, 10*time.Minute)
	ctx := context.Background()

	mock.ExpectDel("payout:run:2026-08").SetVal(1)

	lock.Release(ctx, Period("2026-08"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
