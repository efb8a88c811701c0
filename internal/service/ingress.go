package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

// RaiseParams groups the inputs for raising an alert.
type RaiseParams struct {
	Category   model.AlertCategory
	Severity   model.AlertSeverity
	Title      string
	Message    string
	SiteID     *int64
	SourceType *string
	SourceID   *string
	ExpiresAt  *time.Time
}

// IngressServiceOptions groups dependencies for IngressService.
type IngressServiceOptions struct {
	Repo      core.AlertRepository // Required: alert repository
	Dedup     *DedupEngine         // Required: duplicate suppression
	Publisher AlertEventPublisher  // Optional: created-event fan-out
	Logger    *slog.Logger         // Optional: structured logger
}

// IngressService is the single entry point for raising alerts.
//
// Raise persists the alert, runs duplicate suppression synchronously, then
// dispatches the created event asynchronously. Persistence failures surface
// to the caller; everything after the row is committed is best-effort.
type IngressService struct {
	repo      core.AlertRepository
	dedup     *DedupEngine
	publisher AlertEventPublisher
	logger    *slog.Logger
}

// NewIngressService constructs a new IngressService.
func NewIngressService(opts IngressServiceOptions) (*IngressService, error) {
	if opts.Repo == nil {
		return nil, errors.New("AlertRepository is required")
	}
	if opts.Dedup == nil {
		return nil, errors.New("DedupEngine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IngressService{
		repo:      opts.Repo,
		dedup:     opts.Dedup,
		publisher: opts.Publisher,
		logger:    logger.With("component", "ingress"),
	}, nil
}

// MustNewIngressService constructs a new IngressService and panics on error.
func MustNewIngressService(opts IngressServiceOptions) *IngressService {
	svc, err := NewIngressService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return svc
}

// Raise creates a new alert and returns it. The returned alert may already
// be ARCHIVED when a newer live duplicate superseded it during suppression;
// superseded alerts are not dispatched.
func (s *IngressService) Raise(ctx context.Context, params RaiseParams) (*model.Alert, error) {
	req := &model.CreateAlertRequest{
		Category:   params.Category,
		Severity:   params.Severity,
		Title:      params.Title,
		Message:    params.Message,
		SiteID:     params.SiteID,
		SourceType: params.SourceType,
		SourceID:   params.SourceID,
		ExpiresAt:  params.ExpiresAt,
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	dedupeKey := ComputeDedupeKey(req.Category, req.SiteID, req.Message)

	alert, err := s.repo.Create(ctx, req, dedupeKey)
	if err != nil {
		if apperrors.IsValidation(err) || apperrors.IsStorage(err) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorage, "persist alert")
	}

	s.logger.InfoContext(ctx, "alert raised",
		"alert_id", alert.ID,
		"category", alert.Category,
		"severity", alert.Severity,
		"dedupe_key", alert.DedupeKey)

	// Suppression failure leaves duplicates live until the next raise in the
	// group; the alert itself is already committed, so never fail the raise.
	result, err := s.dedup.Suppress(ctx, alert)
	if err != nil {
		s.logger.WarnContext(ctx, "duplicate suppression failed",
			"alert_id", alert.ID, "err", err)
	}
	if result.Superseded {
		alert.Status = model.AlertStatusArchived
		return alert, nil
	}

	s.dispatchCreatedAsync(ctx, alert)
	return alert, nil
}

// dispatchCreatedAsync publishes the created event without blocking the
// caller or inheriting its cancellation. Errors are logged, never returned.
func (s *IngressService) dispatchCreatedAsync(ctx context.Context, alert *model.Alert) {
	if s.publisher == nil {
		return
	}

	dispatchCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorContext(dispatchCtx, "panic during alert dispatch",
					"alert_id", alert.ID, "panic", r)
			}
		}()

		if err := s.publisher.AlertCreated(dispatchCtx, alert); err != nil {
			s.logger.ErrorContext(dispatchCtx, "failed to dispatch created alert",
				"alert_id", alert.ID, "err", err)
		}
	}()
}
