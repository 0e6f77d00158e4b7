package response

import (
	"context"

	"github.com/stemsi/exstem-assessment/internal/i18n"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotReady       ErrCode = "EXAM_NOT_READY"
	ErrInvalidTransition  ErrCode = "INVALID_TRANSITION"
	ErrAlreadyCompleted   ErrCode = "ALREADY_COMPLETED"
	ErrRetakeRequired     ErrCode = "RETAKE_REQUIRED"
	ErrRetakeNotAllowed   ErrCode = "RETAKE_NOT_ALLOWED"
	ErrRetakeFailed       ErrCode = "RETAKE_FAILED"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidAnswer      ErrCode = "INVALID_ANSWER"
	ErrAnswersLocked      ErrCode = "ANSWERS_LOCKED"
	ErrSubmissionFailed   ErrCode = "SUBMISSION_FAILED"
	ErrGradingUnavailable ErrCode = "GRADING_UNAVAILABLE"
	ErrPlatformDown       ErrCode = "PLATFORM_UNAVAILABLE"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns the message for a code in the language carried by ctx.
func GetMessage(ctx context.Context, code ErrCode) string {
	msg := i18n.T(ctx, string(code))
	if msg == string(code) {
		return i18n.T(ctx, "UNKNOWN_ERROR")
	}
	return msg
}
