package model

import "errors"

// Default preference values applied when a user has no stored row.
const (
	DefaultMaxAlertsPerHour = 100
	DefaultMaxAlertsPerDay  = 500
	DefaultSnoozeMinutes    = 30
	DefaultAlertsPerPage    = 20
)

// UserNotificationPreferences holds one user's delivery preferences.
// An empty enabled-list means "no restriction" (accept all), not "accept none".
type UserNotificationPreferences struct {
	UserID                string          `json:"user_id"                 db:"user_id"`
	EnabledCategories     []AlertCategory `json:"enabled_categories"      db:"enabled_categories"`
	EnabledSeverityLevels []AlertSeverity `json:"enabled_severity_levels" db:"enabled_severity_levels"`
	EnabledAlertTypes     []string        `json:"enabled_alert_types"     db:"enabled_alert_types"`
	MaxAlertsPerHour      int             `json:"max_alerts_per_hour"     db:"max_alerts_per_hour"`
	MaxAlertsPerDay       int             `json:"max_alerts_per_day"      db:"max_alerts_per_day"`
	GroupByCategory       bool            `json:"group_by_category"       db:"group_by_category"`
	GroupBySite           bool            `json:"group_by_site"           db:"group_by_site"`
	EmailOnCritical       bool            `json:"email_on_critical"       db:"email_on_critical"`
	PushNotifications     bool            `json:"push_notifications"      db:"push_notifications"`
	SMSOnCritical         bool            `json:"sms_on_critical"         db:"sms_on_critical"`
	DefaultSnoozeMinutes  int             `json:"default_snooze_minutes"  db:"default_snooze_minutes"`
	AlertsPerPage         int             `json:"alerts_per_page"         db:"alerts_per_page"`
}

// DefaultPreferences returns the documented defaults for a user with no
// stored preferences: only HIGH and CRITICAL severities are enabled.
func DefaultPreferences(userID string) *UserNotificationPreferences {
	return &UserNotificationPreferences{
		UserID:                userID,
		EnabledCategories:     []AlertCategory{},
		EnabledSeverityLevels: []AlertSeverity{AlertSeverityHigh, AlertSeverityCritical},
		EnabledAlertTypes:     []string{},
		MaxAlertsPerHour:      DefaultMaxAlertsPerHour,
		MaxAlertsPerDay:       DefaultMaxAlertsPerDay,
		GroupByCategory:       true,
		GroupBySite:           true,
		EmailOnCritical:       true,
		PushNotifications:     true,
		SMSOnCritical:         false,
		DefaultSnoozeMinutes:  DefaultSnoozeMinutes,
		AlertsPerPage:         DefaultAlertsPerPage,
	}
}

// PreferencesPatch is an explicit, validated partial update for
// UserNotificationPreferences. Nil fields are left untouched; each present
// field is applied individually with type and range checking. Preferences
// are never merged from an untyped key/value map.
type PreferencesPatch struct {
	EnabledCategories     *[]AlertCategory `json:"enabled_categories,omitempty"`
	EnabledSeverityLevels *[]AlertSeverity `json:"enabled_severity_levels,omitempty"`
	EnabledAlertTypes     *[]string        `json:"enabled_alert_types,omitempty"`
	MaxAlertsPerHour      *int             `json:"max_alerts_per_hour,omitempty"`
	MaxAlertsPerDay       *int             `json:"max_alerts_per_day,omitempty"`
	GroupByCategory       *bool            `json:"group_by_category,omitempty"`
	GroupBySite           *bool            `json:"group_by_site,omitempty"`
	EmailOnCritical       *bool            `json:"email_on_critical,omitempty"`
	PushNotifications     *bool            `json:"push_notifications,omitempty"`
	SMSOnCritical         *bool            `json:"sms_on_critical,omitempty"`
	DefaultSnoozeMinutes  *int             `json:"default_snooze_minutes,omitempty"`
	AlertsPerPage         *int             `json:"alerts_per_page,omitempty"`
}

// Validate validates every present field of the patch.
func (p *PreferencesPatch) Validate() error {
	if p.EnabledCategories != nil {
		for _, c := range *p.EnabledCategories {
			if !c.Valid() {
				return errors.New("invalid category: " + c.String())
			}
		}
	}
	if p.EnabledSeverityLevels != nil {
		for _, s := range *p.EnabledSeverityLevels {
			if !s.Valid() {
				return errors.New("invalid severity: " + s.String())
			}
		}
	}
	if p.MaxAlertsPerHour != nil && *p.MaxAlertsPerHour < 0 {
		return errors.New("max_alerts_per_hour cannot be negative")
	}
	if p.MaxAlertsPerDay != nil && *p.MaxAlertsPerDay < 0 {
		return errors.New("max_alerts_per_day cannot be negative")
	}
	if p.DefaultSnoozeMinutes != nil && *p.DefaultSnoozeMinutes < 1 {
		return errors.New("default_snooze_minutes must be at least 1")
	}
	if p.AlertsPerPage != nil && (*p.AlertsPerPage < 1 || *p.AlertsPerPage > 200) {
		return errors.New("alerts_per_page must be between 1 and 200")
	}
	return nil
}

// Apply copies every present patch field onto the preferences.
func (p *PreferencesPatch) Apply(prefs *UserNotificationPreferences) {
	if p.EnabledCategories != nil {
		prefs.EnabledCategories = *p.EnabledCategories
	}
	if p.EnabledSeverityLevels != nil {
		prefs.EnabledSeverityLevels = *p.EnabledSeverityLevels
	}
	if p.EnabledAlertTypes != nil {
		prefs.EnabledAlertTypes = *p.EnabledAlertTypes
	}
	if p.MaxAlertsPerHour != nil {
		prefs.MaxAlertsPerHour = *p.MaxAlertsPerHour
	}
	if p.MaxAlertsPerDay != nil {
		prefs.MaxAlertsPerDay = *p.MaxAlertsPerDay
	}
	if p.GroupByCategory != nil {
		prefs.GroupByCategory = *p.GroupByCategory
	}
	if p.GroupBySite != nil {
		prefs.GroupBySite = *p.GroupBySite
	}
	if p.EmailOnCritical != nil {
		prefs.EmailOnCritical = *p.EmailOnCritical
	}
	if p.PushNotifications != nil {
		prefs.PushNotifications = *p.PushNotifications
	}
	if p.SMSOnCritical != nil {
		prefs.SMSOnCritical = *p.SMSOnCritical
	}
	if p.DefaultSnoozeMinutes != nil {
		prefs.DefaultSnoozeMinutes = *p.DefaultSnoozeMinutes
	}
	if p.AlertsPerPage != nil {
		prefs.AlertsPerPage = *p.AlertsPerPage
	}
}
