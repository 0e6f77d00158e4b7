package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// sessionError maps an error from the session engine to an HTTP status and
// a response code. Order matters: wrapped causes are checked before the
// wrappers that carry them.
func sessionError(err error) (int, response.ErrCode) {
	var (
		submitErr *service.SubmissionError
		retakeErr *service.RetakeInvalidationError
		apiErr    *repository.APIError
	)

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrNotReady):
		return http.StatusConflict, response.ErrExamNotReady
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, response.ErrInvalidTransition
	case errors.Is(err, service.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrAlreadyCompleted
	case errors.Is(err, service.ErrRetakeRequired):
		return http.StatusConflict, response.ErrRetakeRequired
	case errors.Is(err, service.ErrRetakeNotAllowed):
		return http.StatusConflict, response.ErrRetakeNotAllowed
	case errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusNotFound, response.ErrUnknownQuestion
	case errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswer
	case errors.Is(err, service.ErrAnswersLocked):
		return http.StatusLocked, response.ErrAnswersLocked
	case errors.Is(err, service.ErrEmptyMedia):
		return http.StatusBadRequest, response.ErrFileRequired
	case errors.Is(err, service.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType, response.ErrUnsupportedFile
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, response.ErrFileTooLarge
	case errors.As(err, &retakeErr):
		return http.StatusBadGateway, response.ErrRetakeFailed
	case errors.Is(err, service.ErrGradingUnavailable):
		return http.StatusBadGateway, response.ErrGradingUnavailable
	case errors.As(err, &submitErr):
		return http.StatusBadGateway, response.ErrSubmissionFailed
	case repository.IsNotFound(err):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, repository.ErrPlatformUnavailable), errors.As(err, &apiErr):
		return http.StatusBadGateway, response.ErrPlatformDown
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
