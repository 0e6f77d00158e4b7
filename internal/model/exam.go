package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerKind enumerates how a question is answered.
type AnswerKind string

const (
	AnswerKindMultipleChoice AnswerKind = "multiple_choice"
	AnswerKindFreeText       AnswerKind = "free_text"
	AnswerKindImageUpload    AnswerKind = "image_upload"
)

// Valid reports whether k is one of the known answer kinds.
func (k AnswerKind) Valid() bool {
	switch k {
	case AnswerKindMultipleChoice, AnswerKindFreeText, AnswerKindImageUpload:
		return true
	}
	return false
}

// ID is an identifier issued by the learning platform. The platform sends
// some ids as JSON numbers and others as strings; both decode to the same
// string form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Exam is the display metadata and timing of an assessment.
type Exam struct {
	ID              ID     `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Level           string `json:"level"`
	DurationSeconds int    `json:"duration_seconds"`
	QuestionIDs     []ID   `json:"question_ids,omitempty"`
}

// Option is one selectable answer of a multiple choice question.
type Option struct {
	ID    ID      `json:"id"`
	Text  string  `json:"text"`
	Media *string `json:"media,omitempty"`
}

// Question is a single prompt with a declared answer kind.
type Question struct {
	ID         ID         `json:"id"`
	PromptText string     `json:"prompt_text"`
	Media      *string    `json:"media,omitempty"`
	AnswerKind AnswerKind `json:"answer_kind"`
	Options    []Option   `json:"options,omitempty"`
	Points     float64    `json:"points"`
}

// HasOption reports whether optionID belongs to the question.
func (q *Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if string(o.ID) == optionID {
			return true
		}
	}
	return false
}

// ExamPaper is an exam together with its ordered questions, loaded once per
// session and never mutated afterwards.
type ExamPaper struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// Question returns the question with the given id.
func (p *ExamPaper) Question(id string) (*Question, bool) {
	for i := range p.Questions {
		if string(p.Questions[i].ID) == id {
			return &p.Questions[i], true
		}
	}
	return nil, false
}

// Validate checks the structural assumptions the session engine relies on.
func (p *ExamPaper) Validate() error {
	if strings.TrimSpace(string(p.Exam.ID)) == "" {
		return fmt.Errorf("exam id is empty")
	}
	seen := make(map[ID]struct{}, len(p.Questions))
	for _, q := range p.Questions {
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
		if !q.AnswerKind.Valid() {
			return fmt.Errorf("question %q has unknown answer kind %q", q.ID, q.AnswerKind)
		}
		if q.AnswerKind == AnswerKindMultipleChoice && len(q.Options) == 0 {
			return fmt.Errorf("multiple choice question %q has no options", q.ID)
		}
	}
	return nil
}
