package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// SessionHandler exposes the exam session actions to learners.
type SessionHandler struct {
	sessions       *service.ExamSessionService
	stager         *service.MediaStager
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessions *service.ExamSessionService,
	stager *service.MediaStager,
	maxUploadBytes int64,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:       sessions,
		stager:         stager,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

type submitResponse struct {
	Grade            *model.GradeResult    `json:"grade"`
	Passed           bool                  `json:"passed"`
	Certificate      *model.Certificate    `json:"certificate,omitempty"`
	CertificateError string                `json:"certificate_error,omitempty"`
	UploadFailures   []string              `json:"upload_failures,omitempty"`
	Snapshot         model.SessionSnapshot `json:"snapshot"`
}

// OpenSession godoc
// POST /api/v1/learner/exams/:exam_id/session
// Loads the exam and the learner's prior grade and decides what the welcome
// screen offers. A session already in progress is resumed.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	claims, examID, ok := h.params(c)
	if !ok {
		return
	}

	var req model.OpenSessionRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	_, res, err := h.sessions.Open(c.Request.Context(), examID, claims.LearnerID, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	if res.Snapshot != nil {
		snap := localizeSnapshot(c.Request.Context(), *res.Snapshot)
		res.Snapshot = &snap
	}
	response.Success(c, http.StatusOK, res)
}

// GetSession godoc
// GET /api/v1/learner/exams/:exam_id/session
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.snapshot(c, http.StatusOK, sess)
}

// AbandonSession godoc
// DELETE /api/v1/learner/exams/:exam_id/session
// Drops the session. Answers that were not submitted are lost.
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	claims, examID, ok := h.params(c)
	if !ok {
		return
	}
	if err := h.sessions.Abandon(examID, claims.LearnerID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Session closed"})
}

// StartExam godoc
// POST /api/v1/learner/exams/:exam_id/session/start
func (h *SessionHandler) StartExam(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Start(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, http.StatusOK, sess)
}

// SaveAnswer godoc
// PUT /api/v1/learner/exams/:exam_id/session/answers/:question_id
// Records a choice or free-text answer. An empty value clears it.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	questionID := c.Param("question_id")
	if !validator.ValidID(questionID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.Answer(questionID, req.Value); err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, http.StatusOK, sess)
}

// UploadAnswerMedia godoc
// POST /api/v1/learner/exams/:exam_id/session/answers/:question_id/media
// Accepts a multipart "file" for an image question. The upload to the
// platform starts in the background.
func (h *SessionHandler) UploadAnswerMedia(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	questionID := c.Param("question_id")
	if !validator.ValidID(questionID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Leave room for the multipart envelope around the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}

	contentType, err := h.stager.Check(data)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := sess.CaptureMedia(questionID, model.NewMediaHandle(data, contentType, header.Filename)); err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, http.StatusAccepted, sess)
}

// NextQuestion godoc
// POST /api/v1/learner/exams/:exam_id/session/next
func (h *SessionHandler) NextQuestion(c *gin.Context) {
	h.navigate(c, (*service.ExamSession).Next)
}

// PreviousQuestion godoc
// POST /api/v1/learner/exams/:exam_id/session/previous
func (h *SessionHandler) PreviousQuestion(c *gin.Context) {
	h.navigate(c, (*service.ExamSession).Previous)
}

func (h *SessionHandler) navigate(c *gin.Context, move func(*service.ExamSession) (int, error)) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := move(sess); err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, http.StatusOK, sess)
}

// SubmitExam godoc
// POST /api/v1/learner/exams/:exam_id/session/submit
// Uploads pending media, records the submission and returns the grade.
// A failed submit keeps every answer so it can be retried.
func (h *SessionHandler) SubmitExam(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	outcome, err := sess.Submit(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	snap := localizeSnapshot(c.Request.Context(), sess.Snapshot())
	resp := submitResponse{
		Grade:       outcome.Grade,
		Passed:      snap.Passed,
		Certificate: outcome.Certificate,
		Snapshot:    snap,
	}
	if outcome.CertificateErr != nil {
		resp.CertificateError = i18n.T(c.Request.Context(), "notice.certificate_failed")
	}
	for _, f := range outcome.UploadFailures {
		resp.UploadFailures = append(resp.UploadFailures, f.QuestionID)
	}

	response.Success(c, http.StatusOK, resp)
}

// RetakeExam godoc
// POST /api/v1/learner/exams/:exam_id/session/retake
// Invalidates the previous attempt and returns to the welcome state.
func (h *SessionHandler) RetakeExam(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Retake(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, http.StatusOK, sess)
}

// ──────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────

func (h *SessionHandler) params(c *gin.Context) (*service.Claims, string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, "", false
	}
	examID := c.Param("exam_id")
	if !validator.ValidID(examID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, "", false
	}
	return claims, examID, true
}

func (h *SessionHandler) session(c *gin.Context) (*service.ExamSession, bool) {
	claims, examID, ok := h.params(c)
	if !ok {
		return nil, false
	}
	sess, err := h.sessions.Get(examID, claims.LearnerID)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return sess, true
}

func (h *SessionHandler) snapshot(c *gin.Context, status int, sess *service.ExamSession) {
	response.Success(c, status, localizeSnapshot(c.Request.Context(), sess.Snapshot()))
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status, code := sessionError(err)
	ev := h.log.Debug()
	if status >= http.StatusInternalServerError {
		ev = h.log.Warn()
	}
	ev.Err(err).
		Str("request_id", response.RequestID(c)).
		Str("path", c.FullPath()).
		Str("code", string(code)).
		Msg("Session action failed")
	response.Fail(c, status, code)
}
