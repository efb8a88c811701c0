package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/opswatch/alert-engine/internal/core"
)

// rateLimiter enforces per-user delivery caps using fixed-window counters.
// Enforcement is advisory: a counter outage allows delivery rather than
// blocking it, and every suppressed delivery is counted and logged.
type rateLimiter struct {
	counters core.RateCounterRepository
	logger   *slog.Logger
}

// allow reports whether one more created-alert delivery fits under the
// user's hour and day caps. A cap of zero means uncapped on that window.
func (l *rateLimiter) allow(
	ctx context.Context,
	userID string,
	maxPerHour, maxPerDay int,
	now time.Time,
) bool {
	if l.counters == nil || (maxPerHour <= 0 && maxPerDay <= 0) {
		return true
	}

	hour, day, err := l.counters.IncrDelivered(ctx, userID, now)
	if err != nil {
		l.logger.WarnContext(ctx, "rate counter unavailable, allowing delivery",
			"user_id", userID, "err", err)
		return true
	}

	overHour := maxPerHour > 0 && hour > int64(maxPerHour)
	overDay := maxPerDay > 0 && day > int64(maxPerDay)
	if !overHour && !overDay {
		return true
	}

	suppressed, err := l.counters.IncrSuppressed(ctx, userID, now)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to count suppressed delivery",
			"user_id", userID, "err", err)
	}
	l.logger.InfoContext(ctx, "delivery suppressed by rate cap",
		"user_id", userID,
		"over_hour_cap", overHour,
		"over_day_cap", overDay,
		"suppressed_total", suppressed)
	return false
}
