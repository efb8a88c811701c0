package broker

import (
	"encoding/json"

	"github.com/opswatch/alert-engine/internal/domain/model"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

// Inbound command actions. The envelope is {"action": "...", ...}.
const (
	ActionDismiss           = "dismiss"
	ActionSnooze            = "snooze"
	ActionRead              = "read"
	ActionMarkAllRead       = "mark_all_read"
	ActionFilter            = "filter"
	ActionGetPreferences    = "get_preferences"
	ActionUpdatePreferences = "update_preferences"
)

// Outbound message types. The envelope is {"type": "...", ...}.
const (
	MsgAlertsList  = "alerts_list"
	MsgPreferences = "preferences"
	MsgSuccess     = "success"
	MsgError       = "error"
)

// Command is the inbound envelope sent by a session.
type Command struct {
	Action      string                  `json:"action"`
	AlertID     string                  `json:"alert_id,omitempty"`
	Minutes     int                     `json:"minutes,omitempty"`
	Filter      *model.AlertListOptions `json:"filter,omitempty"`
	Preferences *model.PreferencesPatch `json:"preferences,omitempty"`
}

// successMsg acknowledges a completed command.
type successMsg struct {
	Type   string       `json:"type"`
	Action string       `json:"action"`
	Alert  *model.Alert `json:"alert,omitempty"`
	Count  *int         `json:"count,omitempty"`
}

// errorMsg reports a failed command to the issuing session only.
type errorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// alertsListMsg carries a snapshot or filter result.
type alertsListMsg struct {
	Type   string         `json:"type"`
	Alerts []*model.Alert `json:"alerts"`
}

// preferencesMsg carries the user's current preferences.
type preferencesMsg struct {
	Type        string                             `json:"type"`
	Preferences *model.UserNotificationPreferences `json:"preferences"`
}

func encodeSuccess(action string, alert *model.Alert, count *int) []byte {
	payload, _ := json.Marshal(successMsg{
		Type:   MsgSuccess,
		Action: action,
		Alert:  alert,
		Count:  count,
	})
	return payload
}

func encodeError(err error) []byte {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	payload, _ := json.Marshal(errorMsg{
		Type:    MsgError,
		Code:    string(code),
		Message: err.Error(),
	})
	return payload
}

func encodeAlertsList(alerts []*model.Alert) []byte {
	if alerts == nil {
		alerts = []*model.Alert{}
	}
	payload, _ := json.Marshal(alertsListMsg{Type: MsgAlertsList, Alerts: alerts})
	return payload
}

func encodePreferences(prefs *model.UserNotificationPreferences) []byte {
	payload, _ := json.Marshal(preferencesMsg{Type: MsgPreferences, Preferences: prefs})
	return payload
}
