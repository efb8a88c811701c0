package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/opswatch/alert-engine/internal/data/pgxutil"
	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

// AlertRuleRepo provides database operations for routing rules.
type AlertRuleRepo struct {
	DB *sql.DB
}

// NewAlertRuleRepo creates a new AlertRuleRepo instance with the given database connection.
func NewAlertRuleRepo(db *sql.DB) *AlertRuleRepo {
	return &AlertRuleRepo{DB: db}
}

const alertRuleColumns = `id, name, category, severity, conditions, site_ids, notify_user_ids, notify_roles, is_active`

// Create persists a new routing rule.
func (r *AlertRuleRepo) Create(
	ctx context.Context,
	req *model.CreateAlertRuleRequest,
) (*model.AlertRule, error) {
	if req == nil {
		return nil, apperrors.Validation("create alert rule request is required")
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	conditions := req.Conditions
	if conditions == nil {
		conditions = []byte("{}")
	}
	siteIDs := req.SiteIDs
	if siteIDs == nil {
		siteIDs = []int64{}
	}
	userIDs := req.NotifyUserIDs
	if userIDs == nil {
		userIDs = []string{}
	}
	roles := req.NotifyRoles
	if roles == nil {
		roles = []string{}
	}

	query := `
		INSERT INTO alert_rules (id, name, category, severity, conditions, site_ids, notify_user_ids, notify_roles, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + alertRuleColumns

	rule, err := pgxutil.QueryOne[model.AlertRule](ctx, r.DB, query,
		uuid.NewString(), req.Name, req.Category, req.Severity,
		conditions, siteIDs, userIDs, roles, req.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("create alert rule: %w", apperrors.MapDBError(err))
	}

	return rule, nil
}

// ListActiveFor returns the active rules matching the given category and
// severity. Site targeting is evaluated by the caller via AppliesToSite.
func (r *AlertRuleRepo) ListActiveFor(
	ctx context.Context,
	category model.AlertCategory,
	severity model.AlertSeverity,
) ([]*model.AlertRule, error) {
	query := `SELECT ` + alertRuleColumns + ` FROM alert_rules
		WHERE is_active = true AND category = $1 AND severity = $2
		ORDER BY name ASC`

	rules, err := pgxutil.QueryAll[model.AlertRule](ctx, r.DB, query, category, severity)
	if err != nil {
		return nil, fmt.Errorf("list active alert rules: %w", apperrors.MapDBError(err))
	}

	return rules, nil
}
