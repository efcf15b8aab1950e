package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// confirmLockTTL bounds how long a stuck confirm can hold its order hostage.
const confirmLockTTL = 30 * time.Second

// OrderLocker serializes confirm attempts for the same order across
// instances. The row lock inside the settlement transaction is the real
// guard; the redis lock just keeps duplicate gateway calls from racing.
type OrderLocker struct {
	redis *redis.Client
}

// NewOrderLocker creates a redis-backed order locker.
func NewOrderLocker(redisClient *redis.Client) *OrderLocker {
	return &OrderLocker{redis: redisClient}
}

// TryLock acquires the confirm lock for an order. Returns a release func on
// success and false when another confirm holds the lock. Release compares
// the lock token so an expired lock is never released out from under its
// next holder.
func (l *OrderLocker) TryLock(ctx context.Context, orderID uuid.UUID) (func(), bool, error) {
	key := fmt.Sprintf("lock:confirm:%s", orderID)
	token := uuid.NewString()

	acquired, err := l.redis.SetNX(ctx, key, token, confirmLockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("payments: acquire confirm lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		current, err := l.redis.Get(ctx, key).Result()
		if err != nil || current != token {
			return
		}
		l.redis.Del(ctx, key)
	}
	return release, true, nil
}
