package payout

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"fitpass/internal/logger"
)

// RunLock is a best-effort Redis lock keeping two schedulers from grinding
// through the same period at once. Losing Redis only loses the serialization,
// never the correctness.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RunLock{client: client, ttl: ttl}
}

func lockKey(period Period) string {
	return "payout:run:" + period.String()
}

func (l *RunLock) Acquire(ctx context.Context, period Period) (bool, error) {
	return l.client.SetNX(ctx, lockKey(period), "1", l.ttl).Result()
}

func (l *RunLock) Release(ctx context.Context, period Period) {
	if err := l.client.Del(ctx, lockKey(period)).Err(); err != nil {
		logger.Errorf("failed to release payout run lock for %s: %v", period, err)
	}
}
