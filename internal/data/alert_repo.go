package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/data/pgxutil"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

var _ core.AlertRepository = (*AlertRepo)(nil)

// AlertRepo provides database operations for alert storage and lifecycle.
type AlertRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAlertRepo creates a new AlertRepo instance with the given database connection.
func NewAlertRepo(db *sql.DB) *AlertRepo {
	return &AlertRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

// alertColumns defines the column list for Alert SELECT queries to ensure consistent field mapping.
const alertColumns = `id, category, severity, status, title, message, site_id, source_type, source_id,
	priority_order, dedupe_key, is_dismissed, dismissed_at, dismissed_by, snoozed_until, expires_at,
	generated_at, read_at, resolved_at, resolved_by, resolution_notes, email_sent, sms_sent, push_sent`

const (
	defaultActiveLimit = 50
	maxActiveLimit     = 200
)

// Create persists a new alert in status NEW with the given dedupe key.
// The caller computes the key; it is immutable after insert.
func (r *AlertRepo) Create(
	ctx context.Context,
	req *model.CreateAlertRequest,
	dedupeKey string,
) (*model.Alert, error) {
	if req == nil {
		return nil, apperrors.Validation("create alert request is required")
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	if dedupeKey == "" {
		return nil, apperrors.ValidationField("dedupe_key", "dedupe key is required")
	}

	now := r.timeProvider.Now()
	query := `
		INSERT INTO alerts (id, category, severity, status, title, message, site_id, source_type, source_id,
			priority_order, dedupe_key, expires_at, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + alertColumns

	alert, err := pgxutil.QueryOne[model.Alert](ctx, r.DB, query,
		uuid.NewString(), req.Category, req.Severity, model.AlertStatusNew,
		req.Title, req.Message, req.SiteID, req.SourceType, req.SourceID,
		req.Severity.PriorityOrder(), dedupeKey, req.ExpiresAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", apperrors.MapDBError(err))
	}

	return alert, nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepo) GetByID(ctx context.Context, id string) (*model.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("alert %q not found", id)
	}

	alert, err := pgxutil.QueryOne[model.Alert](ctx, r.DB,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("alert %q not found", id)
		}
		return nil, fmt.Errorf("get alert by id: %w", apperrors.MapDBError(err))
	}

	return alert, nil
}

// ListActive returns undismissed alerts in status NEW or IN_PROGRESS,
// highest priority first, newest first within a priority band.
func (r *AlertRepo) ListActive(
	ctx context.Context,
	opts *model.AlertListOptions,
) ([]*model.Alert, error) {
	if opts == nil {
		opts = &model.AlertListOptions{}
	}

	conditions := []string{
		"is_dismissed = false",
		"status IN ('NEW', 'IN_PROGRESS')",
	}
	var args []any
	argIndex := 1

	if opts.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, *opts.Category)
		argIndex++
	}
	if len(opts.Severities) > 0 {
		conditions = append(conditions, fmt.Sprintf("severity = ANY($%d)", argIndex))
		args = append(args, severityStrings(opts.Severities))
		argIndex++
	}
	if opts.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("site_id = $%d", argIndex))
		args = append(args, *opts.SiteID)
		argIndex++
	}

	limit, offset := normalizePagination(opts.Limit, opts.Offset)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM alerts
		WHERE %s
		ORDER BY priority_order DESC, generated_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		alertColumns, strings.Join(conditions, " AND "), argIndex, argIndex+1)

	alerts, err := pgxutil.QueryAll[model.Alert](ctx, r.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", apperrors.MapDBError(err))
	}

	return alerts, nil
}

// ListVisibleNew returns NEW, undismissed alerts visible from the given site
// assignments. Alerts without a site reference are visible to everyone.
func (r *AlertRepo) ListVisibleNew(
	ctx context.Context,
	params core.ListVisibleNewParams,
) ([]*model.Alert, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = maxActiveLimit
	}

	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE status = 'NEW' AND is_dismissed = false
		  AND (site_id IS NULL OR site_id = ANY($1))
		ORDER BY generated_at ASC, id ASC
		LIMIT $2`

	siteIDs := params.SiteIDs
	if siteIDs == nil {
		siteIDs = []int64{}
	}

	alerts, err := pgxutil.QueryAll[model.Alert](ctx, r.DB, query, siteIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("list visible new alerts: %w", apperrors.MapDBError(err))
	}

	return alerts, nil
}

// MarkRead marks an alert as read. Reading an already-read alert succeeds
// without change; read_at keeps its first value.
func (r *AlertRepo) MarkRead(ctx context.Context, id string) (*model.Alert, error) {
	now := r.timeProvider.Now()

	query := `
		UPDATE alerts
		SET status = CASE WHEN status = 'NEW' THEN 'READ' ELSE status END,
		    read_at = COALESCE(read_at, $1)
		WHERE id = $2 AND status NOT IN ('RESOLVED', 'ARCHIVED')
		RETURNING ` + alertColumns

	return r.conditionalUpdate(ctx, id, "mark alert read", query, now, id)
}

// Dismiss sets the dismissal flag and moves the alert to DISMISSED.
func (r *AlertRepo) Dismiss(
	ctx context.Context,
	params core.DismissAlertParams,
) (*model.Alert, error) {
	now := r.timeProvider.Now()

	query := `
		UPDATE alerts
		SET status = 'DISMISSED', is_dismissed = true, dismissed_at = $1, dismissed_by = $2
		WHERE id = $3 AND status NOT IN ('RESOLVED', 'ARCHIVED')
		RETURNING ` + alertColumns

	return r.conditionalUpdate(ctx, params.ID, "dismiss alert", query, now, params.DismissedBy, params.ID)
}

// Snooze moves an alert to SNOOZED until the given time.
func (r *AlertRepo) Snooze(
	ctx context.Context,
	params core.SnoozeAlertParams,
) (*model.Alert, error) {
	query := `
		UPDATE alerts
		SET status = 'SNOOZED', snoozed_until = $1
		WHERE id = $2 AND status NOT IN ('RESOLVED', 'ARCHIVED')
		RETURNING ` + alertColumns

	return r.conditionalUpdate(ctx, params.ID, "snooze alert", query, params.SnoozedUntil, params.ID)
}

// Resolve moves an alert to the terminal RESOLVED status.
func (r *AlertRepo) Resolve(
	ctx context.Context,
	params core.ResolveAlertParams,
) (*model.Alert, error) {
	now := r.timeProvider.Now()

	query := `
		UPDATE alerts
		SET status = 'RESOLVED', resolved_at = $1, resolved_by = $2, resolution_notes = NULLIF($3, '')
		WHERE id = $4 AND status NOT IN ('RESOLVED', 'ARCHIVED')
		RETURNING ` + alertColumns

	return r.conditionalUpdate(ctx, params.ID, "resolve alert", query,
		now, params.ResolvedBy, params.ResolutionNotes, params.ID)
}

// MarkChannelsSent records side-channel flags on an alert. Flags only latch
// on; a false input never clears a previously set flag.
func (r *AlertRepo) MarkChannelsSent(
	ctx context.Context,
	params core.MarkChannelsSentParams,
) error {
	query := `
		UPDATE alerts
		SET email_sent = email_sent OR $1,
		    sms_sent = sms_sent OR $2,
		    push_sent = push_sent OR $3
		WHERE id = $4`

	affected, err := pgxutil.Exec(ctx, r.DB, query,
		params.EmailSent, params.SMSSent, params.PushSent, params.ID)
	if err != nil {
		return fmt.Errorf("mark alert channels sent: %w", apperrors.MapDBError(err))
	}
	if affected == 0 {
		return apperrors.NotFoundf("alert %q not found", params.ID)
	}
	return nil
}

// ArchiveDuplicates archives every NEW, undismissed alert sharing the dedupe
// key inside the window, keeping the newest row (ties broken by id). Returns
// the archived rows so the caller can announce each transition; an empty
// result is a valid no-op.
func (r *AlertRepo) ArchiveDuplicates(
	ctx context.Context,
	params core.ArchiveDuplicatesParams,
) ([]*model.Alert, error) {
	query := `
		UPDATE alerts
		SET status = 'ARCHIVED'
		WHERE dedupe_key = $1
		  AND id <> $2
		  AND status = 'NEW'
		  AND is_dismissed = false
		  AND generated_at >= $3
		  AND (generated_at < $4 OR (generated_at = $4 AND id < $2))
		RETURNING ` + alertColumns

	alerts, err := pgxutil.QueryAll[model.Alert](ctx, r.DB, query,
		params.DedupeKey, params.KeepID, params.WindowStart, params.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("archive duplicate alerts: %w", apperrors.MapDBError(err))
	}
	return alerts, nil
}

// ArchiveIfSuperseded archives the given alert when a newer live duplicate
// exists inside the window, so a late-arriving older duplicate never stays
// live next to the alert that superseded it. Returns whether it archived.
func (r *AlertRepo) ArchiveIfSuperseded(
	ctx context.Context,
	params core.ArchiveDuplicatesParams,
) (bool, error) {
	query := `
		UPDATE alerts
		SET status = 'ARCHIVED'
		WHERE id = $1 AND status = 'NEW' AND is_dismissed = false
		  AND EXISTS (
			SELECT 1 FROM alerts b
			WHERE b.dedupe_key = $2
			  AND b.id <> $1
			  AND b.status = 'NEW'
			  AND b.is_dismissed = false
			  AND b.generated_at >= $3
			  AND (b.generated_at > $4 OR (b.generated_at = $4 AND b.id > $1))
		  )`

	affected, err := pgxutil.Exec(ctx, r.DB, query,
		params.KeepID, params.DedupeKey, params.WindowStart, params.GeneratedAt)
	if err != nil {
		return false, fmt.Errorf("archive superseded alert: %w", apperrors.MapDBError(err))
	}
	return affected > 0, nil
}

// ArchiveExpired archives every NEW or SNOOZED alert whose expiry has passed
// and returns the transitioned rows. Alerts someone has engaged with (READ,
// IN_PROGRESS, DISMISSED) are left alone. Safe to run from concurrent
// schedulers; a row already archived by another instance is skipped by the
// status guard.
func (r *AlertRepo) ArchiveExpired(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	query := `
		UPDATE alerts
		SET status = 'ARCHIVED'
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		  AND status IN ('NEW', 'SNOOZED')
		RETURNING ` + alertColumns

	alerts, err := pgxutil.QueryAll[model.Alert](ctx, r.DB, query, now)
	if err != nil {
		return nil, fmt.Errorf("archive expired alerts: %w", apperrors.MapDBError(err))
	}
	return alerts, nil
}

// WakeSnoozed returns expired snoozes to NEW and clears snoozed_until. The
// status guard skips rows that expired and were archived earlier in the tick.
func (r *AlertRepo) WakeSnoozed(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	query := `
		UPDATE alerts
		SET status = 'NEW', snoozed_until = NULL
		WHERE status = 'SNOOZED'
		  AND snoozed_until IS NOT NULL AND snoozed_until <= $1
		RETURNING ` + alertColumns

	alerts, err := pgxutil.QueryAll[model.Alert](ctx, r.DB, query, now)
	if err != nil {
		return nil, fmt.Errorf("wake snoozed alerts: %w", apperrors.MapDBError(err))
	}
	return alerts, nil
}

// conditionalUpdate runs a guarded status transition. When the guard matches
// no row it re-reads the alert to distinguish a missing id from an illegal
// transition out of a terminal status.
func (r *AlertRepo) conditionalUpdate(
	ctx context.Context,
	id string,
	op string,
	query string,
	args ...any,
) (*model.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("alert %q not found", id)
	}

	alert, err := pgxutil.QueryOne[model.Alert](ctx, r.DB, query, args...)
	if err == nil {
		return alert, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, apperrors.MapDBError(err))
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, apperrors.InvalidTransitionf(
		"cannot %s from terminal status %s", op, current.Status)
}

// normalizePagination normalizes limit and offset values for pagination.
func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultActiveLimit
	}
	if limit > maxActiveLimit {
		limit = maxActiveLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func severityStrings(severities []model.AlertSeverity) []string {
	out := make([]string, 0, len(severities))
	for _, s := range severities {
		out = append(out, s.String())
	}
	return out
}
