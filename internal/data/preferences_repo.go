package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opswatch/alert-engine/internal/data/pgxutil"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

// PreferencesRepo provides database operations for user notification preferences.
type PreferencesRepo struct {
	DB *sql.DB
}

// NewPreferencesRepo creates a new PreferencesRepo instance with the given database connection.
func NewPreferencesRepo(db *sql.DB) *PreferencesRepo {
	return &PreferencesRepo{DB: db}
}

const preferencesColumns = `user_id, enabled_categories, enabled_severity_levels, enabled_alert_types,
	max_alerts_per_hour, max_alerts_per_day, group_by_category, group_by_site,
	email_on_critical, push_notifications, sms_on_critical, default_snooze_minutes, alerts_per_page`

// GetByUserID returns the stored preferences for a user, or the documented
// defaults when no row exists. Absence is not an error.
func (r *PreferencesRepo) GetByUserID(
	ctx context.Context,
	userID string,
) (*model.UserNotificationPreferences, error) {
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}

	prefs, err := pgxutil.QueryOne[model.UserNotificationPreferences](ctx, r.DB,
		`SELECT `+preferencesColumns+` FROM user_notification_preferences WHERE user_id = $1`,
		userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultPreferences(userID), nil
		}
		return nil, fmt.Errorf("get preferences: %w", apperrors.MapDBError(err))
	}

	return prefs, nil
}

// Upsert writes the full preferences row for a user, creating it on first
// update. The row carries complete state; patch semantics live in the service.
func (r *PreferencesRepo) Upsert(
	ctx context.Context,
	prefs *model.UserNotificationPreferences,
) (*model.UserNotificationPreferences, error) {
	if prefs == nil {
		return nil, apperrors.Validation("preferences are required")
	}
	if prefs.UserID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}

	query := `
		INSERT INTO user_notification_preferences (user_id, enabled_categories, enabled_severity_levels,
			enabled_alert_types, max_alerts_per_hour, max_alerts_per_day, group_by_category, group_by_site,
			email_on_critical, push_notifications, sms_on_critical, default_snooze_minutes, alerts_per_page)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			enabled_categories = EXCLUDED.enabled_categories,
			enabled_severity_levels = EXCLUDED.enabled_severity_levels,
			enabled_alert_types = EXCLUDED.enabled_alert_types,
			max_alerts_per_hour = EXCLUDED.max_alerts_per_hour,
			max_alerts_per_day = EXCLUDED.max_alerts_per_day,
			group_by_category = EXCLUDED.group_by_category,
			group_by_site = EXCLUDED.group_by_site,
			email_on_critical = EXCLUDED.email_on_critical,
			push_notifications = EXCLUDED.push_notifications,
			sms_on_critical = EXCLUDED.sms_on_critical,
			default_snooze_minutes = EXCLUDED.default_snooze_minutes,
			alerts_per_page = EXCLUDED.alerts_per_page
		RETURNING ` + preferencesColumns

	updated, err := pgxutil.QueryOne[model.UserNotificationPreferences](ctx, r.DB, query,
		prefs.UserID, categoryStrings(prefs.EnabledCategories), severityStrings(prefs.EnabledSeverityLevels),
		prefs.EnabledAlertTypes, prefs.MaxAlertsPerHour, prefs.MaxAlertsPerDay,
		prefs.GroupByCategory, prefs.GroupBySite,
		prefs.EmailOnCritical, prefs.PushNotifications, prefs.SMSOnCritical,
		prefs.DefaultSnoozeMinutes, prefs.AlertsPerPage,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert preferences: %w", apperrors.MapDBError(err))
	}

	return updated, nil
}

func categoryStrings(categories []model.AlertCategory) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, c.String())
	}
	return out
}
