//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Alert represents one actionable notification-worthy event in the system.
type Alert struct {
	ID              string        `json:"id"                         db:"id"`
	Category        AlertCategory `json:"category"                   db:"category"`
	Severity        AlertSeverity `json:"severity"                   db:"severity"`
	Status          AlertStatus   `json:"status"                     db:"status"`
	Title           string        `json:"title"                      db:"title"`
	Message         string        `json:"message"                    db:"message"`
	SiteID          *int64        `json:"site_id,omitempty"          db:"site_id"`
	SourceType      *string       `json:"source_type,omitempty"      db:"source_type"`
	SourceID        *string       `json:"source_id,omitempty"        db:"source_id"`
	PriorityOrder   int           `json:"priority_order"             db:"priority_order"`
	DedupeKey       string        `json:"dedupe_key"                 db:"dedupe_key"`
	IsDismissed     bool          `json:"is_dismissed"               db:"is_dismissed"`
	DismissedAt     *time.Time    `json:"dismissed_at,omitempty"     db:"dismissed_at"`
	DismissedBy     *string       `json:"dismissed_by,omitempty"     db:"dismissed_by"`
	SnoozedUntil    *time.Time    `json:"snoozed_until,omitempty"    db:"snoozed_until"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"       db:"expires_at"`
	GeneratedAt     time.Time     `json:"generated_at"               db:"generated_at"`
	ReadAt          *time.Time    `json:"read_at,omitempty"          db:"read_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"      db:"resolved_at"`
	ResolvedBy      *string       `json:"resolved_by,omitempty"      db:"resolved_by"`
	ResolutionNotes *string       `json:"resolution_notes,omitempty" db:"resolution_notes"`
	EmailSent       bool          `json:"email_sent"                 db:"email_sent"`
	SMSSent         bool          `json:"sms_sent"                   db:"sms_sent"`
	PushSent        bool          `json:"push_sent"                  db:"push_sent"`
}

// AlertCategory classifies the operational domain an alert belongs to.
type AlertCategory string

const (
	AlertCategoryOperational    AlertCategory = "OPERATIONAL"
	AlertCategorySafety         AlertCategory = "SAFETY"
	AlertCategoryMaintenance    AlertCategory = "MAINTENANCE"
	AlertCategoryEnvironmental  AlertCategory = "ENVIRONMENTAL"
	AlertCategoryTechnical      AlertCategory = "TECHNICAL"
	AlertCategoryAdministrative AlertCategory = "ADMINISTRATIVE"
	AlertCategoryIncident       AlertCategory = "INCIDENT"
	AlertCategoryEquipment      AlertCategory = "EQUIPMENT"
	AlertCategoryStock          AlertCategory = "STOCK"
	AlertCategorySystem         AlertCategory = "SYSTEM"
)

// Valid returns true if the alert category is one of the supported values.
func (c AlertCategory) Valid() bool {
	switch c {
	case AlertCategoryOperational, AlertCategorySafety, AlertCategoryMaintenance,
		AlertCategoryEnvironmental, AlertCategoryTechnical, AlertCategoryAdministrative,
		AlertCategoryIncident, AlertCategoryEquipment, AlertCategoryStock, AlertCategorySystem:
		return true
	default:
		return false
	}
}

// String returns the string representation of the alert category.
func (c AlertCategory) String() string {
	return string(c)
}

// AlertSeverity represents the ordered severity level of an alert.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "LOW"
	AlertSeverityMedium   AlertSeverity = "MEDIUM"
	AlertSeverityHigh     AlertSeverity = "HIGH"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

// Valid returns true if the alert severity is one of the supported values.
func (s AlertSeverity) Valid() bool {
	switch s {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh, AlertSeverityCritical:
		return true
	default:
		return false
	}
}

// Rank returns the ordering position of the severity, lowest first.
// Unknown severities rank below LOW.
func (s AlertSeverity) Rank() int {
	switch s {
	case AlertSeverityLow:
		return 1
	case AlertSeverityMedium:
		return 2
	case AlertSeverityHigh:
		return 3
	case AlertSeverityCritical:
		return 4
	default:
		return 0
	}
}

// String returns the string representation of the alert severity.
func (s AlertSeverity) String() string {
	return string(s)
}

// PriorityOrder derives the list-ranking weight for the severity.
// The value is denormalized onto the alert row at creation for sorting;
// it is never authoritative.
func (s AlertSeverity) PriorityOrder() int {
	return s.Rank() * 10
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusNew        AlertStatus = "NEW"
	AlertStatusRead       AlertStatus = "READ"
	AlertStatusInProgress AlertStatus = "IN_PROGRESS"
	AlertStatusSnoozed    AlertStatus = "SNOOZED"
	AlertStatusDismissed  AlertStatus = "DISMISSED"
	AlertStatusResolved   AlertStatus = "RESOLVED"
	AlertStatusArchived   AlertStatus = "ARCHIVED"
)

// Valid returns true if the alert status is one of the supported values.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusNew, AlertStatusRead, AlertStatusInProgress, AlertStatusSnoozed,
		AlertStatusDismissed, AlertStatusResolved, AlertStatusArchived:
		return true
	default:
		return false
	}
}

// Terminal returns true when no further transition is legal from the status.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusArchived
}

// String returns the string representation of the alert status.
func (s AlertStatus) String() string {
	return string(s)
}

// CreateAlertRequest represents a request to create a new alert.
type CreateAlertRequest struct {
	Category   AlertCategory `json:"category"`
	Severity   AlertSeverity `json:"severity"`
	Title      string        `json:"title"`
	Message    string        `json:"message"`
	SiteID     *int64        `json:"site_id,omitempty"`
	SourceType *string       `json:"source_type,omitempty"`
	SourceID   *string       `json:"source_id,omitempty"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
}

// Normalize normalizes the CreateAlertRequest fields.
func (r *CreateAlertRequest) Normalize() {
	r.Category = AlertCategory(strings.ToUpper(strings.TrimSpace(string(r.Category))))
	r.Severity = AlertSeverity(strings.ToUpper(strings.TrimSpace(string(r.Severity))))
	r.Title = strings.TrimSpace(r.Title)
	r.Message = strings.TrimSpace(r.Message)
	if r.SourceType != nil {
		trimmed := strings.TrimSpace(*r.SourceType)
		r.SourceType = &trimmed
	}
}

// Validate validates the CreateAlertRequest fields.
func (r *CreateAlertRequest) Validate() error {
	if !r.Category.Valid() {
		return errors.New("invalid category")
	}

	if !r.Severity.Valid() {
		return errors.New("invalid severity")
	}

	if r.Title == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(r.Title) > 200 {
		return errors.New("title cannot exceed 200 characters")
	}

	if r.Message == "" {
		return errors.New("message is required")
	}

	// A correlation reference is either fully present or fully absent.
	if (r.SourceType == nil) != (r.SourceID == nil) {
		return errors.New("source_type and source_id must be provided together")
	}

	return nil
}

// AlertListOptions represents filter options for listing active alerts.
// Zero-value fields leave the corresponding dimension unfiltered.
type AlertListOptions struct {
	Category   *AlertCategory  `json:"category,omitempty"`
	Severities []AlertSeverity `json:"severities,omitempty"`
	SiteID     *int64          `json:"site_id,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}
