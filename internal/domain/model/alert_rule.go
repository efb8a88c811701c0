package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// AlertRule is a read-mostly configuration record describing who should be
// notified when an alert of a given category/severity fires.
//
// The Conditions payload is an opaque predicate evaluated by the domain
// producer that raises alerts; this engine only routes on the other fields.
type AlertRule struct {
	ID            string          `json:"id"              db:"id"`
	Name          string          `json:"name"            db:"name"`
	Category      AlertCategory   `json:"category"        db:"category"`
	Severity      AlertSeverity   `json:"severity"        db:"severity"`
	Conditions    json.RawMessage `json:"conditions"      db:"conditions"`
	SiteIDs       []int64         `json:"site_ids"        db:"site_ids"`
	NotifyUserIDs []string        `json:"notify_user_ids" db:"notify_user_ids"`
	NotifyRoles   []string        `json:"notify_roles"    db:"notify_roles"`
	IsActive      bool            `json:"is_active"       db:"is_active"`
}

// AppliesToSite reports whether the rule targets the given site.
// An empty SiteIDs list means the rule applies to all sites, and an alert
// without a site reference matches every rule.
func (r *AlertRule) AppliesToSite(siteID *int64) bool {
	if len(r.SiteIDs) == 0 || siteID == nil {
		return true
	}
	for _, id := range r.SiteIDs {
		if id == *siteID {
			return true
		}
	}
	return false
}

// CreateAlertRuleRequest represents a request to create a new alert rule.
type CreateAlertRuleRequest struct {
	Name          string          `json:"name"`
	Category      AlertCategory   `json:"category"`
	Severity      AlertSeverity   `json:"severity"`
	Conditions    json.RawMessage `json:"conditions,omitempty"`
	SiteIDs       []int64         `json:"site_ids,omitempty"`
	NotifyUserIDs []string        `json:"notify_user_ids,omitempty"`
	NotifyRoles   []string        `json:"notify_roles,omitempty"`
	IsActive      bool            `json:"is_active"`
}

// Normalize normalizes the CreateAlertRuleRequest fields.
func (r *CreateAlertRuleRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Category = AlertCategory(strings.ToUpper(strings.TrimSpace(string(r.Category))))
	r.Severity = AlertSeverity(strings.ToUpper(strings.TrimSpace(string(r.Severity))))
}

// Validate validates the CreateAlertRuleRequest fields.
func (r *CreateAlertRuleRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if !r.Category.Valid() {
		return errors.New("invalid category")
	}
	if !r.Severity.Valid() {
		return errors.New("invalid severity")
	}
	return nil
}
