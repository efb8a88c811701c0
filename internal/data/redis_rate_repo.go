package data

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/opswatch/alert-engine/internal/errors"
	"github.com/redis/go-redis/v9"
)

const (
	rateKeyPrefix = "alert-engine:rate"

	hourWindowTTL = 2 * time.Hour
	dayWindowTTL  = 48 * time.Hour
)

// RedisRateRepo tracks per-user delivery counts in Redis fixed windows.
// Counters are advisory; a Redis outage degrades rate capping, not delivery.
type RedisRateRepo struct {
	client redis.UniversalClient
}

// NewRedisRateRepo creates a new RedisRateRepo backed by the given client.
func NewRedisRateRepo(client redis.UniversalClient) *RedisRateRepo {
	return &RedisRateRepo{client: client}
}

// IncrDelivered bumps the hour and day counters for the user and returns the
// new counts. Window keys are bucketed on the wall clock so every instance
// increments the same counter.
func (r *RedisRateRepo) IncrDelivered(
	ctx context.Context,
	userID string,
	now time.Time,
) (int64, int64, error) {
	hourKey := r.hourKey(userID, now)
	dayKey := r.dayKey(userID, now)

	pipe := r.client.TxPipeline()
	hourIncr := pipe.Incr(ctx, hourKey)
	pipe.ExpireNX(ctx, hourKey, hourWindowTTL)
	dayIncr := pipe.Incr(ctx, dayKey)
	pipe.ExpireNX(ctx, dayKey, dayWindowTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, apperrors.Wrap(err, apperrors.ErrCodeStorage, "increment delivery counters")
	}

	return hourIncr.Val(), dayIncr.Val(), nil
}

// IncrSuppressed counts a delivery withheld by a rate cap.
func (r *RedisRateRepo) IncrSuppressed(
	ctx context.Context,
	userID string,
	now time.Time,
) (int64, error) {
	key := fmt.Sprintf("%s:%s:suppressed:%s", rateKeyPrefix, userID, now.UTC().Format("2006010215"))

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, hourWindowTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeStorage, "increment suppression counter")
	}

	return incr.Val(), nil
}

func (r *RedisRateRepo) hourKey(userID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:h:%s", rateKeyPrefix, userID, now.UTC().Format("2006010215"))
}

func (r *RedisRateRepo) dayKey(userID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:d:%s", rateKeyPrefix, userID, now.UTC().Format("20060102"))
}
