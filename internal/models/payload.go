package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SubmitActivityPayload is a student's answer sheet for an activity.
type SubmitActivityPayload struct {
	ActivityID  string            `json:"activity_id"`
	StudentID   string            `json:"student_id"`
	Answers     map[string]string `json:"answers"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// GradeActivityPayload grades a student's submission.
type GradeActivityPayload struct {
	ActivityID   string  `json:"activity_id"`
	SubmissionID string  `json:"submission_id"`
	Grade        float64 `json:"grade"`
	Feedback     string  `json:"feedback,omitempty"`
}

// PostNoticePayload is a notice posted to a class board.
type PostNoticePayload struct {
	ClassID  string `json:"class_id"`
	AuthorID string `json:"author_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// Validate checks required fields.
func (p SubmitActivityPayload) Validate() error {
	if p.ActivityID == "" || p.StudentID == "" {
		return fmt.Errorf("activity_id and student_id are required")
	}
	return nil
}

// Validate checks required fields.
func (p GradeActivityPayload) Validate() error {
	if p.ActivityID == "" || p.SubmissionID == "" {
		return fmt.Errorf("activity_id and submission_id are required")
	}
	if p.Grade < 0 {
		return fmt.Errorf("grade must not be negative, got %v", p.Grade)
	}
	return nil
}

// Validate checks required fields.
func (p PostNoticePayload) Validate() error {
	if p.ClassID == "" || p.Title == "" {
		return fmt.Errorf("class_id and title are required")
	}
	return nil
}

// ValidatePayload decodes payload as the typed payload of a known action
// type and checks its required fields. Unknown types are not checked.
func ValidatePayload(actionType ActionType, payload json.RawMessage) error {
	var v interface{ Validate() error }
	switch actionType {
	case ActionSubmitActivity:
		v = &SubmitActivityPayload{}
	case ActionGradeActivity:
		v = &GradeActivityPayload{}
	case ActionPostNotice:
		v = &PostNoticePayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%s payload: %w", actionType, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%s payload: %w", actionType, err)
	}
	return nil
}
