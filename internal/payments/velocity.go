package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// VelocityChecker counts settlement attempts per patient in a sliding redis
// window. Failed debits burn attempts too, so a script hammering the balance
// endpoint runs out of tries quickly.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig bounds how often a patient may attempt settlement.
type VelocityConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultVelocityConfig returns the default settlement attempt limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxAttempts: 5,
		Window:      10 * time.Minute,
	}
}

// VelocityResult reports where a patient stands against the limit.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
}

// NewVelocityChecker creates a velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.MaxAttempts <= 0 {
		config = DefaultVelocityConfig()
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// CheckSettle consumes one settlement attempt for the patient. Redis being
// down fails open; blocking every payment over a cache outage costs more
// than the fraud it prevents.
func (v *VelocityChecker) CheckSettle(ctx context.Context, patientID uuid.UUID) (*VelocityResult, error) {
	key := fmt.Sprintf("velocity:settle:%s", patientID)

	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxAttempts,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxAttempts,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		v.logger.Warn("settlement velocity exceeded",
			"patient_id", patientID,
			"count", count,
			"max", v.config.MaxAttempts,
		)
	}
	return result, nil
}

// Reset clears the attempt counter for a patient.
func (v *VelocityChecker) Reset(ctx context.Context, patientID uuid.UUID) error {
	key := fmt.Sprintf("velocity:settle:%s", patientID)
	return v.redis.Del(ctx, key).Err()
}

func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Expiry is set only when the key is fresh so the window never slides.
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}
