package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

// PreferenceServiceOptions groups dependencies for PreferenceService.
type PreferenceServiceOptions struct {
	Repo   core.PreferencesRepository // Required: preferences repository
	Logger *slog.Logger               // Optional: structured logger
}

// PreferenceService answers per-user delivery questions and manages the
// stored preference rows. Users without a row get the documented defaults,
// so ShouldDeliver never fails on a missing record.
type PreferenceService struct {
	repo   core.PreferencesRepository
	logger *slog.Logger
}

// NewPreferenceService constructs a new PreferenceService.
func NewPreferenceService(opts PreferenceServiceOptions) (*PreferenceService, error) {
	if opts.Repo == nil {
		return nil, errors.New("PreferencesRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PreferenceService{
		repo:   opts.Repo,
		logger: logger.With("component", "preferences"),
	}, nil
}

// MustNewPreferenceService constructs a new PreferenceService and panics on error.
func MustNewPreferenceService(opts PreferenceServiceOptions) *PreferenceService {
	svc, err := NewPreferenceService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return svc
}

// GetPreferences returns the user's preferences, defaults when none stored.
func (s *PreferenceService) GetPreferences(
	ctx context.Context,
	userID string,
) (*model.UserNotificationPreferences, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// UpdatePreferences applies a validated partial update on top of the user's
// current (or default) preferences and persists the result.
func (s *PreferenceService) UpdatePreferences(
	ctx context.Context,
	userID string,
	patch *model.PreferencesPatch,
) (*model.UserNotificationPreferences, error) {
	if patch == nil {
		return nil, apperrors.Validation("preferences patch is required")
	}
	if err := patch.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	current, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	patch.Apply(current)
	updated, err := s.repo.Upsert(ctx, current)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "preferences updated", "user_id", userID)
	return updated, nil
}

// ShouldDeliver reports whether the alert passes the user's category,
// severity, and alert-type filters. An empty enabled list means no
// restriction on that dimension. Rate caps are not decided here.
func (s *PreferenceService) ShouldDeliver(
	ctx context.Context,
	userID string,
	alert *model.Alert,
) (bool, error) {
	if alert == nil {
		return false, errors.New("alert is required")
	}

	prefs, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}

	return PreferencesAllow(prefs, alert), nil
}

// PreferencesAllow applies the category, severity, and alert-type filters of
// already-loaded preferences to an alert.
func PreferencesAllow(prefs *model.UserNotificationPreferences, alert *model.Alert) bool {
	if prefs == nil || alert == nil {
		return false
	}
	if len(prefs.EnabledCategories) > 0 &&
		!slices.Contains(prefs.EnabledCategories, alert.Category) {
		return false
	}
	if len(prefs.EnabledSeverityLevels) > 0 &&
		!slices.Contains(prefs.EnabledSeverityLevels, alert.Severity) {
		return false
	}
	if len(prefs.EnabledAlertTypes) > 0 && alert.SourceType != nil &&
		!slices.Contains(prefs.EnabledAlertTypes, *alert.SourceType) {
		return false
	}
	return true
}
