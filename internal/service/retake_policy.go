package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// Retake sequence steps, reported in RetakeInvalidationError.
const (
	RetakeStepListCertificates  = "list_certificates"
	RetakeStepDeleteCertificate = "delete_certificate"
	RetakeStepDeleteSubmission  = "delete_submission"
)

// DecideEntry maps the latest grade for (learner, exam) to the action the
// welcome state offers. Any score between zero and the pass threshold is
// treated as completed, the same as a pass.
func DecideEntry(prior *model.GradeResult) model.EntryAction {
	switch {
	case prior == nil:
		return model.EntryActionStart
	case prior.Score == 0:
		return model.EntryActionRetake
	default:
		return model.EntryActionBlocked
	}
}

// RetakeAllowed reports whether a retake may invalidate prior.
func RetakeAllowed(prior *model.GradeResult) bool {
	return DecideEntry(prior) == model.EntryActionRetake
}

// RetakePolicy invalidates a prior attempt: certificate first, then the
// submission and its grade.
type RetakePolicy struct {
	grading GradingClient
	certs   CertificateIssuer
	log     zerolog.Logger
}

// NewRetakePolicy creates a new RetakePolicy.
func NewRetakePolicy(grading GradingClient, certs CertificateIssuer, log zerolog.Logger) *RetakePolicy {
	return &RetakePolicy{
		grading: grading,
		certs:   certs,
		log:     log.With().Str("component", "retake_policy").Logger(),
	}
}

// Invalidate deletes the certificate backed by prior (if any) and then the
// prior submission. The first failing step aborts the sequence; a
// certificate already deleted is not restored.
func (p *RetakePolicy) Invalidate(ctx context.Context, examID, learnerID string, prior *model.GradeResult) error {
	if !RetakeAllowed(prior) {
		return ErrRetakeNotAllowed
	}

	if unitID := string(prior.CurriculumUnitID); unitID != "" && p.certs != nil {
		certs, err := p.certs.ListCertificates(ctx, learnerID)
		if err != nil {
			return &RetakeInvalidationError{Step: RetakeStepListCertificates, Err: err}
		}
		for _, c := range certs {
			if string(c.CurriculumUnitID) != unitID {
				continue
			}
			if err := p.certs.DeleteCertificate(ctx, learnerID, unitID); err != nil {
				return &RetakeInvalidationError{Step: RetakeStepDeleteCertificate, Err: err}
			}
			p.log.Info().
				Str("learner_id", learnerID).
				Str("curriculum_unit_id", unitID).
				Msg("Certificate invalidated for retake")
			break
		}
	}

	if err := p.grading.DeleteSubmission(ctx, examID, learnerID); err != nil {
		return &RetakeInvalidationError{Step: RetakeStepDeleteSubmission, Err: err}
	}

	p.log.Info().
		Str("exam_id", examID).
		Str("learner_id", learnerID).
		Msg("Prior submission invalidated for retake")
	return nil
}
