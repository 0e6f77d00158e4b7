package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// ExamRepository loads exam papers from the learning platform.
type ExamRepository struct {
	client *PlatformClient
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(client *PlatformClient) *ExamRepository {
	return &ExamRepository{client: client}
}

// GetExam returns the exam with its questions in presentation order.
func (r *ExamRepository) GetExam(ctx context.Context, examID string) (*model.ExamPaper, error) {
	var paper model.ExamPaper
	if _, err := r.client.doJSON(ctx, http.MethodGet, pathJoin("exams", examID), nil, &paper); err != nil {
		return nil, fmt.Errorf("get exam %s: %w", examID, err)
	}
	orderQuestions(&paper)
	return &paper, nil
}

// orderQuestions arranges questions by the exam's question_ids when the
// platform provides that list. Questions missing from it keep their
// relative order at the end.
func orderQuestions(p *model.ExamPaper) {
	if len(p.Exam.QuestionIDs) == 0 {
		return
	}
	byID := make(map[model.ID]model.Question, len(p.Questions))
	for _, q := range p.Questions {
		byID[q.ID] = q
	}

	ordered := make([]model.Question, 0, len(p.Questions))
	for _, id := range p.Exam.QuestionIDs {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
			delete(byID, id)
		}
	}
	for _, q := range p.Questions {
		if _, ok := byID[q.ID]; ok {
			ordered = append(ordered, q)
		}
	}
	p.Questions = ordered
}
