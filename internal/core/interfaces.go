// Package core defines the service-layer ports and their parameter types.
// Implementations live in internal/data; services depend only on these
// interfaces so tests can substitute func-field mocks.
package core

import (
	"context"
	"time"

	"github.com/opswatch/alert-engine/internal/domain/model"
)

// SnoozeAlertParams groups parameters for snoozing an alert.
type SnoozeAlertParams struct {
	ID           string
	SnoozedUntil time.Time
}

// DismissAlertParams groups parameters for dismissing an alert.
type DismissAlertParams struct {
	ID          string
	DismissedBy string
}

// ResolveAlertParams groups parameters for resolving an alert.
type ResolveAlertParams struct {
	ID              string
	ResolvedBy      string
	ResolutionNotes string
}

// ArchiveDuplicatesParams identifies the surviving alert of a dedupe group.
// Everything else in the group inside the window is archived.
type ArchiveDuplicatesParams struct {
	DedupeKey   string
	KeepID      string
	GeneratedAt time.Time
	WindowStart time.Time
}

// ListVisibleNewParams scopes the NEW-alert listing used by mark_all_read.
type ListVisibleNewParams struct {
	SiteIDs []int64
	Limit   int
}

// MarkChannelsSentParams records which side channels an alert was flagged for.
type MarkChannelsSentParams struct {
	ID        string
	EmailSent bool
	SMSSent   bool
	PushSent  bool
}

// AlertRepository is the persistence port for alerts. Every status mutation
// is conditional on the alert's current state; implementations return an
// invalid_transition error when the guard does not match and not_found when
// the id does not exist.
type AlertRepository interface {
	Create(ctx context.Context, req *model.CreateAlertRequest, dedupeKey string) (*model.Alert, error)
	GetByID(ctx context.Context, id string) (*model.Alert, error)
	ListActive(ctx context.Context, opts *model.AlertListOptions) ([]*model.Alert, error)
	ListVisibleNew(ctx context.Context, params ListVisibleNewParams) ([]*model.Alert, error)

	MarkRead(ctx context.Context, id string) (*model.Alert, error)
	Dismiss(ctx context.Context, params DismissAlertParams) (*model.Alert, error)
	Snooze(ctx context.Context, params SnoozeAlertParams) (*model.Alert, error)
	Resolve(ctx context.Context, params ResolveAlertParams) (*model.Alert, error)
	MarkChannelsSent(ctx context.Context, params MarkChannelsSentParams) error

	ArchiveDuplicates(ctx context.Context, params ArchiveDuplicatesParams) ([]*model.Alert, error)
	ArchiveIfSuperseded(ctx context.Context, params ArchiveDuplicatesParams) (bool, error)
	ArchiveExpired(ctx context.Context, now time.Time) ([]*model.Alert, error)
	WakeSnoozed(ctx context.Context, now time.Time) ([]*model.Alert, error)
}

// AlertRuleRepository is the persistence port for routing rules.
type AlertRuleRepository interface {
	Create(ctx context.Context, req *model.CreateAlertRuleRequest) (*model.AlertRule, error)
	ListActiveFor(ctx context.Context, category model.AlertCategory, severity model.AlertSeverity) ([]*model.AlertRule, error)
}

// PreferencesRepository is the persistence port for user notification
// preferences. GetByUserID never reports not_found; absent rows yield the
// documented defaults.
type PreferencesRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.UserNotificationPreferences, error)
	Upsert(ctx context.Context, prefs *model.UserNotificationPreferences) (*model.UserNotificationPreferences, error)
}

// RateCounterRepository tracks per-user delivery counts over fixed windows.
type RateCounterRepository interface {
	// IncrDelivered bumps the hour and day counters for the user and returns
	// the new counts.
	IncrDelivered(ctx context.Context, userID string, now time.Time) (hour int64, day int64, err error)
	// IncrSuppressed counts a delivery withheld by a rate cap.
	IncrSuppressed(ctx context.Context, userID string, now time.Time) (int64, error)
}
