// Package models provides data model definitions for the offline sync queue.
package models

import (
	"encoding/json"
	"time"
)

// ActionType selects the executor that replays a queued action.
type ActionType string

const (
	ActionSubmitActivity ActionType = "submit_activity"
	ActionGradeActivity  ActionType = "grade_activity"
	ActionPostNotice     ActionType = "post_notice"
)

// ActionTypes lists the known action types in a stable order.
var ActionTypes = []ActionType{
	ActionSubmitActivity,
	ActionGradeActivity,
	ActionPostNotice,
}

// IsKnown reports whether t is one of the known action types.
func (t ActionType) IsKnown() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the tag as a string.
func (t ActionType) String() string {
	return string(t)
}

// QueuedAction is a unit of deferred work held in the pending or dead-letter queue.
type QueuedAction struct {
	ID         string          `json:"id"`
	ActionType ActionType      `json:"action_type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
}

// Clone returns a deep copy of the action, payload bytes included.
func (a QueuedAction) Clone() QueuedAction {
	if a.Payload != nil {
		p := make(json.RawMessage, len(a.Payload))
		copy(p, a.Payload)
		a.Payload = p
	}
	return a
}

// CloneActions deep-copies a queue so callers cannot alias engine state.
func CloneActions(actions []QueuedAction) []QueuedAction {
	out := make([]QueuedAction, len(actions))
	for i, a := range actions {
		out[i] = a.Clone()
	}
	return out
}
