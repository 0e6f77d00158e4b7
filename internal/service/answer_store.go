package service

import (
	"sync"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// AnswerStore holds the answers of one attempt, keyed by question id.
// Unanswered questions are absent. The store is frozen while a submission
// is being built.
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[string]model.Answer
	locked  bool
}

// NewAnswerStore creates an empty AnswerStore.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[string]model.Answer)}
}

// Set stores or replaces the answer for a.QuestionID.
func (s *AnswerStore) Set(a model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return ErrAnswersLocked
	}
	s.answers[a.QuestionID] = a
	return nil
}

// Clear removes the answer for questionID, making it unanswered again.
func (s *AnswerStore) Clear(questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return ErrAnswersLocked
	}
	delete(s.answers, questionID)
	return nil
}

// Get returns the answer for questionID.
func (s *AnswerStore) Get(questionID string) (model.Answer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// Len returns the number of answered questions.
func (s *AnswerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}

// Snapshot returns a copy of all answers.
func (s *AnswerStore) Snapshot() map[string]model.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Answer, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Freeze rejects further mutation until Thaw is called.
func (s *AnswerStore) Freeze() {
	s.mu.Lock()
	s.locked = true
	s.mu.Unlock()
}

// Thaw re-enables mutation after a failed submission.
func (s *AnswerStore) Thaw() {
	s.mu.Lock()
	s.locked = false
	s.mu.Unlock()
}

// Reset drops every answer and unfreezes the store.
func (s *AnswerStore) Reset() {
	s.mu.Lock()
	s.answers = make(map[string]model.Answer)
	s.locked = false
	s.mu.Unlock()
}
