package service

import (
	"context"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// ExamSource loads exam papers.
type ExamSource interface {
	GetExam(ctx context.Context, examID string) (*model.ExamPaper, error)
}

// GradingClient records submissions and computes grades. ComputeGrade
// returns (nil, nil) when no grade exists for the pair.
type GradingClient interface {
	RecordSubmission(ctx context.Context, examID, learnerID string, entries []model.SubmissionEntry) error
	ComputeGrade(ctx context.Context, examID, learnerID string) (*model.GradeResult, error)
	DeleteSubmission(ctx context.Context, examID, learnerID string) error
}

// MediaUploader stores an answer image and returns its remote path.
type MediaUploader interface {
	UploadAnswerMedia(ctx context.Context, examID, learnerID, questionID string, data []byte, contentType string) (string, error)
}

// CertificateIssuer manages learner certificates.
type CertificateIssuer interface {
	IssueCertificate(ctx context.Context, learnerID, curriculumUnitID string) (*model.Certificate, error)
	ListCertificates(ctx context.Context, learnerID string) ([]model.Certificate, error)
	DeleteCertificate(ctx context.Context, learnerID, curriculumUnitID string) error
}

// CompletionCache is the local, optimistic record of completed exams.
// The grading service stays authoritative.
type CompletionCache interface {
	MarkCompleted(ctx context.Context, learnerID, examID string) error
	Forget(ctx context.Context, learnerID, examID string) error
	CompletedExams(ctx context.Context, learnerID string) ([]string, error)
}
