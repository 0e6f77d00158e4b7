package service

import (
	"errors"
	"fmt"
)

// Session engine errors.
var (
	ErrNotReady           = errors.New("exam and questions are not loaded")
	ErrInvalidTransition  = errors.New("action not allowed in the current session state")
	ErrAlreadyCompleted   = errors.New("exam already completed")
	ErrRetakeRequired     = errors.New("previous attempt must be invalidated with a retake first")
	ErrRetakeNotAllowed   = errors.New("retake is not available for this attempt")
	ErrUnknownQuestion    = errors.New("question does not belong to this exam")
	ErrInvalidAnswer      = errors.New("answer does not match the question's answer kind")
	ErrAnswersLocked      = errors.New("answers are locked while the submission is in progress")
	ErrGradingUnavailable = errors.New("grade was not computed for the recorded submission")
	ErrSessionNotFound    = errors.New("no session for this exam")
)

// UploadError records a failed media upload for one question. It never
// aborts a submission.
type UploadError struct {
	QuestionID string
	Err        error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload media for question %s: %v", e.QuestionID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// SubmissionError means recording the submission or computing the grade
// failed. The learner's answers are kept and the submit can be retried.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// CertificateError means a certificate could not be issued after a pass.
// The grade itself stands.
type CertificateError struct {
	CurriculumUnitID string
	Err              error
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("issue certificate for unit %q: %v", e.CurriculumUnitID, e.Err)
}

func (e *CertificateError) Unwrap() error { return e.Err }

// RetakeInvalidationError means one step of the retake sequence failed and
// the retake was aborted.
type RetakeInvalidationError struct {
	Step string
	Err  error
}

func (e *RetakeInvalidationError) Error() string {
	return fmt.Sprintf("retake aborted at %s: %v", e.Step, e.Err)
}

func (e *RetakeInvalidationError) Unwrap() error { return e.Err }
