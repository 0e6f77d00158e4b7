package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/model"
)

func TestGradingService_Grade(t *testing.T) {
	entries := []model.SubmissionEntry{{QuestionID: "q1", Answer: "a"}}

	t.Run("records then computes", func(t *testing.T) {
		g := &fakeGrading{onRecord: &model.GradeResult{Score: 70}}
		grade, err := NewGradingService(g, nil, zerolog.Nop()).Grade(context.Background(), "exam-1", "learner-1", entries)
		if err != nil {
			t.Fatalf("Grade: %v", err)
		}
		if grade.Score != 70 {
			t.Errorf("score = %v, want 70", grade.Score)
		}
		if len(g.calls) != 2 || g.calls[0] != "record" || g.calls[1] != "compute" {
			t.Errorf("calls = %v, want [record compute]", g.calls)
		}
	})

	t.Run("compute failure", func(t *testing.T) {
		g := &fakeGrading{onRecord: &model.GradeResult{Score: 70}, computeErr: errPlatformDown}
		_, err := NewGradingService(g, nil, zerolog.Nop()).Grade(context.Background(), "exam-1", "learner-1", entries)
		var subErr *SubmissionError
		if !errors.As(err, &subErr) || subErr.Op != "compute_grade" {
			t.Fatalf("Grade = %v, want compute_grade SubmissionError", err)
		}
	})

	t.Run("no grade computed", func(t *testing.T) {
		g := &fakeGrading{}
		_, err := NewGradingService(g, nil, zerolog.Nop()).Grade(context.Background(), "exam-1", "learner-1", entries)
		if !errors.Is(err, ErrGradingUnavailable) {
			t.Fatalf("Grade = %v, want ErrGradingUnavailable", err)
		}
	})
}

func TestGradingService_Certify(t *testing.T) {
	svc := NewGradingService(&fakeGrading{}, &fakeCerts{}, zerolog.Nop())
	ctx := context.Background()

	cert, err := svc.Certify(ctx, "learner-1", &model.GradeResult{Score: 50, CurriculumUnitID: "unit-7"})
	if err != nil {
		t.Fatalf("Certify at threshold: %v", err)
	}
	if cert.LearnerID != "learner-1" || cert.CurriculumUnitID != "unit-7" {
		t.Errorf("certificate = %+v", cert)
	}

	failing := []*model.GradeResult{
		nil,
		{Score: 49.9, CurriculumUnitID: "unit-7"},
		{Score: 90},
	}
	for _, g := range failing {
		var certErr *CertificateError
		if _, err := svc.Certify(ctx, "learner-1", g); !errors.As(err, &certErr) {
			t.Errorf("Certify(%+v) = %v, want *CertificateError", g, err)
		}
	}
}
