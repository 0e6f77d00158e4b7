package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates session lifecycle events.
type EventType string

const (
	EventStateChanged      EventType = "state_changed"
	EventTick              EventType = "tick"
	EventAutoSubmit        EventType = "auto_submit"
	EventUploadWarning     EventType = "upload_warning"
	EventSubmissionFailed  EventType = "submission_failed"
	EventGraded            EventType = "graded"
	EventCertificateIssued EventType = "certificate_issued"
	EventCertificateFailed EventType = "certificate_failed"
	EventAttemptExpired    EventType = "attempt_expired"
	EventRetakeCompleted   EventType = "retake_completed"
	EventRetakeFailed      EventType = "retake_failed"
)

// Journaled reports whether events of this type are persisted to the
// attempt journal. Ticks are only streamed.
func (t EventType) Journaled() bool {
	return t != EventTick
}

// SessionEvent is published to subscribers of a session.
type SessionEvent struct {
	Type       EventType    `json:"type"`
	ExamID     string       `json:"exam_id"`
	LearnerID  string       `json:"learner_id"`
	State      SessionState `json:"state,omitempty"`
	Remaining  *int         `json:"remaining,omitempty"`
	QuestionID string       `json:"question_id,omitempty"`
	Score      *float64     `json:"score,omitempty"`
	Level      string       `json:"level,omitempty"`
	Detail     string       `json:"detail,omitempty"`
	At         time.Time    `json:"at"`
}

// AttemptEvent is a persisted journal row.
type AttemptEvent struct {
	ID         uuid.UUID `json:"id"`
	ExamID     string    `json:"exam_id"`
	LearnerID  string    `json:"learner_id"`
	Type       EventType `json:"type"`
	Score      *float64  `json:"score,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
