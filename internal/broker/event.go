// Package broker fans alert events out to connected notification sessions
// and services the inbound command protocol those sessions speak.
package broker

import (
	"encoding/json"
	"fmt"

	"github.com/opswatch/alert-engine/internal/domain/model"
)

// Topic names. Every session subscribes to its user topic, its role topic,
// and the broadcast topic; events carry an id so a session that hears the
// same event on two topics delivers it once.
const (
	TopicBroadcast = "alerts:broadcast"

	topicUserPrefix = "alerts:user:"
	topicRolePrefix = "alerts:role:"
)

// UserTopic returns the per-user topic name.
func UserTopic(userID string) string {
	return topicUserPrefix + userID
}

// RoleTopic returns the per-role topic name.
func RoleTopic(role string) string {
	return topicRolePrefix + role
}

// Event types carried on topics.
const (
	EventAlertCreated      = "alert_created"
	EventAlertStateChanged = "alert_state_changed"
)

// EventTargets names who an event was explicitly routed to. A session
// matching a target delivers the event regardless of site visibility;
// everyone else only sees it when their site assignments cover the alert.
type EventTargets struct {
	UserIDs []string `json:"user_ids,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// Event is the envelope published on topics.
type Event struct {
	EventID string       `json:"event_id"`
	Type    string       `json:"type"`
	Alert   *model.Alert `json:"alert"`
	Targets EventTargets `json:"targets,omitempty"`
}

func encodeEvent(evt *Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return payload, nil
}

func decodeEvent(payload []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &evt, nil
}

func (t EventTargets) matchesUser(userID string) bool {
	for _, id := range t.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (t EventTargets) matchesRole(role string) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}
