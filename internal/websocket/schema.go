package websocket

import (
	"encoding/json"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionSubmit   Action = "submit"
	ActionSnapshot Action = "snapshot"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
	// RequestID is echoed back on the matching ack or error.
	RequestID string `json:"request_id,omitempty"`
}

// AnswerRequest is sent by the client to answer a single question.
type AnswerRequest struct {
	Action     Action `json:"action"`
	RequestID  string `json:"request_id,omitempty"`
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventAck      Event = "ack"
	EventSession  Event = "session_event"
	EventSnapshot Event = "snapshot"
	EventPong     Event = "pong"
)

// AckResponse confirms an action and carries the resulting snapshot.
type AckResponse struct {
	Event     Event                  `json:"event"`
	Action    Action                 `json:"action"`
	RequestID string                 `json:"request_id,omitempty"`
	Snapshot  *model.SessionSnapshot `json:"snapshot,omitempty"`
	Grade     *model.GradeResult     `json:"grade,omitempty"`
}

// SessionEventResponse forwards a published session event verbatim.
type SessionEventResponse struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type SnapshotResponse struct {
	Event    Event                 `json:"event"`
	Snapshot model.SessionSnapshot `json:"snapshot"`
}

type ErrorResponse struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
