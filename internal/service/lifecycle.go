package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/data"
	"github.com/opswatch/alert-engine/internal/domain/auth"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

// AlertEventPublisher pushes alert events toward connected sessions. The
// delivery broker implements it; services stay decoupled from transport.
type AlertEventPublisher interface {
	AlertCreated(ctx context.Context, alert *model.Alert) error
	AlertStateChanged(ctx context.Context, alert *model.Alert) error
}

// LifecycleServiceOptions groups dependencies for LifecycleService.
type LifecycleServiceOptions struct {
	Repo         core.AlertRepository       // Required: alert repository
	Prefs        core.PreferencesRepository // Optional: snooze duration defaults
	Publisher    AlertEventPublisher        // Optional: state-change fan-out
	TimeProvider data.TimeProvider          // Optional: defaults to real time
	Logger       *slog.Logger               // Optional: structured logger
}

// LifecycleService drives alert status transitions. The repository enforces
// the state machine with guarded updates; this service layers the requester
// context (snooze defaults, site scoping) and event publication on top.
type LifecycleService struct {
	repo         core.AlertRepository
	prefs        core.PreferencesRepository
	publisher    AlertEventPublisher
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewLifecycleService constructs a new LifecycleService.
func NewLifecycleService(opts LifecycleServiceOptions) (*LifecycleService, error) {
	if opts.Repo == nil {
		return nil, errors.New("AlertRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}
	return &LifecycleService{
		repo:         opts.Repo,
		prefs:        opts.Prefs,
		publisher:    opts.Publisher,
		timeProvider: timeProvider,
		logger:       logger.With("component", "lifecycle"),
	}, nil
}

// MustNewLifecycleService constructs a new LifecycleService and panics on error.
func MustNewLifecycleService(opts LifecycleServiceOptions) *LifecycleService {
	svc, err := NewLifecycleService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return svc
}

// SetPublisher installs the event publisher after construction. The broker
// depends on this service for inbound commands, so wiring happens in two
// steps; call this before serving traffic.
func (s *LifecycleService) SetPublisher(p AlertEventPublisher) {
	s.publisher = p
}

// MarkRead marks an alert as read. Re-reading an already-read alert
// succeeds without change.
func (s *LifecycleService) MarkRead(ctx context.Context, id string) (*model.Alert, error) {
	alert, err := s.repo.MarkRead(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishStateChanged(ctx, alert)
	return alert, nil
}

// Dismiss dismisses an alert on behalf of a user. The dismissal flag is
// orthogonal to status and survives later transitions.
func (s *LifecycleService) Dismiss(
	ctx context.Context,
	id string,
	dismissedBy string,
) (*model.Alert, error) {
	alert, err := s.repo.Dismiss(ctx, core.DismissAlertParams{
		ID:          id,
		DismissedBy: dismissedBy,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "alert dismissed", "alert_id", alert.ID, "dismissed_by", dismissedBy)
	s.publishStateChanged(ctx, alert)
	return alert, nil
}

// Snooze hides an alert until the given number of minutes has elapsed. A
// non-positive duration falls back to the requester's default.
func (s *LifecycleService) Snooze(
	ctx context.Context,
	id string,
	userID string,
	minutes int,
) (*model.Alert, error) {
	if minutes <= 0 {
		minutes = s.defaultSnoozeMinutes(ctx, userID)
	}

	until := s.timeProvider.Now().Add(time.Duration(minutes) * time.Minute)
	alert, err := s.repo.Snooze(ctx, core.SnoozeAlertParams{
		ID:           id,
		SnoozedUntil: until,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "alert snoozed",
		"alert_id", alert.ID, "snoozed_until", until, "minutes", minutes)
	s.publishStateChanged(ctx, alert)
	return alert, nil
}

// Resolve moves an alert to its terminal RESOLVED status with optional notes.
func (s *LifecycleService) Resolve(
	ctx context.Context,
	params core.ResolveAlertParams,
) (*model.Alert, error) {
	alert, err := s.repo.Resolve(ctx, params)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "alert resolved", "alert_id", alert.ID, "resolved_by", params.ResolvedBy)
	s.publishStateChanged(ctx, alert)
	return alert, nil
}

// MarkAllRead marks every NEW alert visible to the identity as read, one
// alert at a time so each transition is individually guarded and published.
// Returns how many alerts changed to READ.
func (s *LifecycleService) MarkAllRead(ctx context.Context, identity auth.Identity) (int, error) {
	alerts, err := s.repo.ListVisibleNew(ctx, core.ListVisibleNewParams{
		SiteIDs: identity.AssignedSiteIDs,
	})
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, alert := range alerts {
		if _, err := s.MarkRead(ctx, alert.ID); err != nil {
			// another session may have transitioned the alert meanwhile
			if apperrors.IsNotFound(err) || apperrors.IsInvalidTransition(err) {
				s.logger.InfoContext(ctx, "skipping alert during mark_all_read",
					"alert_id", alert.ID, "err", err)
				continue
			}
			return marked, err
		}
		marked++
	}

	s.logger.InfoContext(ctx, "marked all visible alerts read",
		"user_id", identity.UserID, "count", marked)
	return marked, nil
}

func (s *LifecycleService) defaultSnoozeMinutes(ctx context.Context, userID string) int {
	if s.prefs == nil || userID == "" {
		return model.DefaultSnoozeMinutes
	}
	prefs, err := s.prefs.GetByUserID(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load snooze default, using fallback",
			"user_id", userID, "err", err)
		return model.DefaultSnoozeMinutes
	}
	return prefs.DefaultSnoozeMinutes
}

func (s *LifecycleService) publishStateChanged(ctx context.Context, alert *model.Alert) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.AlertStateChanged(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "failed to publish state change",
			"alert_id", alert.ID, "err", err)
	}
}
