package model

import (
	"time"

	"github.com/google/uuid"
)

// MediaHandle is a locally captured image waiting to be uploaded.
type MediaHandle struct {
	ID          uuid.UUID `json:"id"`
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// NewMediaHandle wraps captured bytes in a fresh handle.
func NewMediaHandle(data []byte, contentType, filename string) *MediaHandle {
	return &MediaHandle{
		ID:          uuid.New(),
		Data:        data,
		ContentType: contentType,
		Filename:    filename,
		CapturedAt:  time.Now(),
	}
}

// Answer is the transient value captured for one question. Exactly one of
// OptionID, Text or Media is meaningful, depending on Kind.
type Answer struct {
	QuestionID string       `json:"question_id"`
	Kind       AnswerKind   `json:"kind"`
	OptionID   string       `json:"option_id,omitempty"`
	Text       string       `json:"text,omitempty"`
	Media      *MediaHandle `json:"media,omitempty"`
}

// SubmissionEntry is the normalized per-question record sent for grading.
type SubmissionEntry struct {
	QuestionID string  `json:"question_id"`
	Answer     string  `json:"answer"`
	Media      *string `json:"media"`
}
