package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

const maxCompletionExams = 50

// ProgressHandler reports completions and attempt history.
type ProgressHandler struct {
	progress *service.ProgressService
	log      zerolog.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(progress *service.ProgressService, log zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		log:      log.With().Str("component", "progress_handler").Logger(),
	}
}

// ListCompletions godoc
// GET /api/v1/learner/completions?exam_id=a&exam_id=b
// Accepts repeated or comma-separated exam ids.
func (h *ProgressHandler) ListCompletions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examIDs, ok := parseExamIDs(c.QueryArray("exam_id"))
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	if len(examIDs) == 0 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"exam_id": "at least one exam_id is required"})
		return
	}

	completions, err := h.progress.Completions(c.Request.Context(), claims.LearnerID, examIDs)
	if err != nil {
		status, code := sessionError(err)
		h.log.Warn().Err(err).Str("learner_id", claims.LearnerID).Msg("Failed to list completions")
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"completions": completions})
}

// GetHistory godoc
// GET /api/v1/learner/exams/:exam_id/history?limit=100
// Returns the journaled events of the learner's attempts, newest first.
func (h *ProgressHandler) GetHistory(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID := c.Param("exam_id")
	if !validator.ValidID(examID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.progress.History(c.Request.Context(), claims.LearnerID, examID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID).Msg("Failed to load attempt history")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if events == nil {
		events = []model.AttemptEvent{}
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// parseExamIDs flattens repeated and comma-separated ids, dropping
// duplicates. It fails on any malformed id or on too many ids.
func parseExamIDs(raw []string) ([]string, bool) {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range raw {
		for _, id := range strings.Split(r, ",") {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			if !validator.ValidID(id) {
				return nil, false
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) > maxCompletionExams {
		return nil, false
	}
	return ids, true
}
