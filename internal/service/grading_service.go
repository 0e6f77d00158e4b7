package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// GradingService runs the record → compute → certify sequence.
type GradingService struct {
	grading GradingClient
	certs   CertificateIssuer
	log     zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(grading GradingClient, certs CertificateIssuer, log zerolog.Logger) *GradingService {
	return &GradingService{
		grading: grading,
		certs:   certs,
		log:     log.With().Str("component", "grading_service").Logger(),
	}
}

// Grade records the entries and then asks for the computed grade. Every
// failure is returned as a *SubmissionError.
func (s *GradingService) Grade(ctx context.Context, examID, learnerID string, entries []model.SubmissionEntry) (*model.GradeResult, error) {
	if err := s.grading.RecordSubmission(ctx, examID, learnerID, entries); err != nil {
		return nil, &SubmissionError{Op: "record", Err: err}
	}

	grade, err := s.grading.ComputeGrade(ctx, examID, learnerID)
	if err != nil {
		return nil, &SubmissionError{Op: "compute_grade", Err: err}
	}
	if grade == nil {
		return nil, &SubmissionError{Op: "compute_grade", Err: ErrGradingUnavailable}
	}

	s.log.Info().
		Str("exam_id", examID).
		Str("learner_id", learnerID).
		Float64("score", grade.Score).
		Str("level", grade.Level).
		Int("entries", len(entries)).
		Msg("Submission graded")

	return grade, nil
}

// Certify issues a certificate for a passing grade. Callers check Passed
// first; a failing grade is rejected here as well.
func (s *GradingService) Certify(ctx context.Context, learnerID string, grade *model.GradeResult) (*model.Certificate, error) {
	unitID := ""
	if grade != nil {
		unitID = string(grade.CurriculumUnitID)
	}
	if !grade.Passed() {
		return nil, &CertificateError{CurriculumUnitID: unitID, Err: errors.New("grade is below the pass threshold")}
	}
	if unitID == "" {
		return nil, &CertificateError{Err: errors.New("grade has no curriculum unit")}
	}
	if s.certs == nil {
		return nil, &CertificateError{CurriculumUnitID: unitID, Err: errors.New("no certificate issuer configured")}
	}

	cert, err := s.certs.IssueCertificate(ctx, learnerID, unitID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("learner_id", learnerID).
			Str("curriculum_unit_id", unitID).
			Msg("Certificate issuance failed")
		return nil, &CertificateError{CurriculumUnitID: unitID, Err: err}
	}
	if cert.CurriculumUnitID == "" {
		cert.CurriculumUnitID = grade.CurriculumUnitID
	}
	if cert.LearnerID == "" {
		cert.LearnerID = learnerID
	}
	return cert, nil
}
