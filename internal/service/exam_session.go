package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// SessionDeps groups the collaborators shared by every session.
type SessionDeps struct {
	Exams             ExamSource
	Grading           GradingClient
	Media             MediaUploader
	Certificates      CertificateIssuer
	Completions       CompletionCache
	Notifier          Notifier
	Stager            *MediaStager
	NewTicker         TickerFactory
	UploadConcurrency int
	Log               zerolog.Logger
}

// SessionOptions are per-session switches chosen when the session is opened.
type SessionOptions struct {
	IssueCertificate bool
}

// SubmitOutcome describes a successful submission.
type SubmitOutcome struct {
	Entries        []model.SubmissionEntry
	Grade          *model.GradeResult
	Certificate    *model.Certificate
	CertificateErr error
	UploadFailures []*UploadError
}

// ExamSession drives one learner through one exam:
// welcome → exam → results, and back to welcome through a retake.
type ExamSession struct {
	examID    string
	learnerID string
	opts      SessionOptions

	exams       ExamSource
	grader      GradingClient
	completions CompletionCache
	notifier    Notifier
	newTicker   TickerFactory

	grading *GradingService
	retake  *RetakePolicy
	answers *AnswerStore
	media   *MediaPipeline
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	flight singleflight.Group

	mu          sync.Mutex
	state       model.SessionState
	paper       *model.ExamPaper
	entry       model.EntryAction
	prior       *model.GradeResult
	index       int
	timer       *Countdown
	submitting  bool
	retaking    bool
	closed      bool
	result      *model.GradeResult
	certificate *model.Certificate
	notices     []model.Notice
}

// NewExamSession creates a session in the welcome state. Nothing is loaded
// until Load is called.
func NewExamSession(ctx context.Context, examID, learnerID string, deps SessionDeps, opts SessionOptions) *ExamSession {
	log := logger.ForSession(deps.Log, examID, learnerID).
		With().Str("component", "exam_session").Logger()
	sctx, cancel := context.WithCancel(ctx)

	return &ExamSession{
		examID:      examID,
		learnerID:   learnerID,
		opts:        opts,
		exams:       deps.Exams,
		grader:      deps.Grading,
		completions: deps.Completions,
		notifier:    deps.Notifier,
		newTicker:   deps.NewTicker,
		grading:     NewGradingService(deps.Grading, deps.Certificates, log),
		retake:      NewRetakePolicy(deps.Grading, deps.Certificates, log),
		answers:     NewAnswerStore(),
		media:       NewMediaPipeline(deps.Media, deps.Stager, deps.UploadConcurrency, log),
		log:         log,
		ctx:         sctx,
		cancel:      cancel,
		state:       model.SessionStateWelcome,
		entry:       model.EntryActionBlocked,
	}
}

// ExamID returns the exam of this session.
func (s *ExamSession) ExamID() string { return s.examID }

// LearnerID returns the learner of this session.
func (s *ExamSession) LearnerID() string { return s.learnerID }

// State returns the current lifecycle state.
func (s *ExamSession) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load fetches the exam paper and the latest grade, then lets the retake
// policy decide what the welcome state offers. It is the only
// initialization step; Start refuses to run before it succeeded.
func (s *ExamSession) Load(ctx context.Context) (*model.LoadResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if s.state != model.SessionStateWelcome {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	s.mu.Unlock()

	failed := &model.LoadResult{Status: model.LoadStatusError, Entry: model.EntryActionBlocked}

	paper, err := s.exams.GetExam(ctx, s.examID)
	if err != nil {
		return failed, fmt.Errorf("load exam: %w", err)
	}
	if err := paper.Validate(); err != nil {
		return failed, fmt.Errorf("load exam: %w", err)
	}

	prior, err := s.grader.ComputeGrade(ctx, s.examID, s.learnerID)
	if err != nil {
		return failed, fmt.Errorf("load prior grade: %w", err)
	}
	entry := DecideEntry(prior)

	s.mu.Lock()
	s.paper = paper
	s.prior = prior
	s.entry = entry
	s.notices = nil
	if entry == model.EntryActionBlocked {
		s.notices = append(s.notices, model.Notice{Kind: model.NoticeAlreadyCompleted})
	}
	s.mu.Unlock()

	status := model.LoadStatusReady
	if entry == model.EntryActionBlocked {
		status = model.LoadStatusBlocked
	}

	ev := s.log.Info().
		Str("entry", string(entry)).
		Int("questions", len(paper.Questions))
	if prior != nil {
		ev = ev.Float64("prior_score", prior.Score)
	}
	ev.Msg("Session loaded")

	snap := s.Snapshot()
	return &model.LoadResult{
		Status:   status,
		Entry:    entry,
		Prior:    prior,
		Snapshot: &snap,
	}, nil
}

// Start enters the exam state and starts the countdown.
func (s *ExamSession) Start(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.state != model.SessionStateWelcome || s.retaking {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	if s.paper == nil || len(s.paper.Questions) == 0 || s.paper.Exam.DurationSeconds <= 0 {
		s.mu.Unlock()
		return ErrNotReady
	}
	switch s.entry {
	case model.EntryActionBlocked:
		s.mu.Unlock()
		return ErrAlreadyCompleted
	case model.EntryActionRetake:
		s.mu.Unlock()
		return ErrRetakeRequired
	}

	s.answers.Reset()
	s.media.Reset()
	s.index = 0
	s.result = nil
	s.certificate = nil
	s.notices = nil

	var timer *Countdown
	timer = NewCountdown(s.paper.Exam.DurationSeconds, s.newTicker,
		func(remaining int) { s.onTick(timer, remaining) },
		func() { s.onExpire(timer) },
	)
	s.timer = timer
	s.state = model.SessionStateExam
	duration := s.paper.Exam.DurationSeconds
	s.mu.Unlock()

	timer.Start()

	s.log.Info().Int("duration_seconds", duration).Msg("Exam started")
	s.emit(model.SessionEvent{Type: model.EventStateChanged, State: model.SessionStateExam, Remaining: &duration})
	return nil
}

// Answer records a multiple choice or free text answer. An empty value
// clears the answer.
func (s *ExamSession) Answer(questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionNotFound
	}
	if s.state != model.SessionStateExam {
		return ErrInvalidTransition
	}
	q, ok := s.paper.Question(questionID)
	if !ok {
		return ErrUnknownQuestion
	}

	switch q.AnswerKind {
	case model.AnswerKindMultipleChoice:
		if value == "" {
			return s.answers.Clear(questionID)
		}
		if !q.HasOption(value) {
			return fmt.Errorf("%w: option %q is not offered by question %s", ErrInvalidAnswer, value, questionID)
		}
		return s.answers.Set(model.Answer{QuestionID: questionID, Kind: q.AnswerKind, OptionID: value})
	case model.AnswerKindFreeText:
		if strings.TrimSpace(value) == "" {
			return s.answers.Clear(questionID)
		}
		return s.answers.Set(model.Answer{QuestionID: questionID, Kind: q.AnswerKind, Text: value})
	default:
		return fmt.Errorf("%w: question %s takes an image", ErrInvalidAnswer, questionID)
	}
}

// CaptureMedia attaches an image to an image_upload question, discarding
// any image captured for it before.
func (s *ExamSession) CaptureMedia(questionID string, h *model.MediaHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionNotFound
	}
	if s.state != model.SessionStateExam {
		return ErrInvalidTransition
	}
	q, ok := s.paper.Question(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	if q.AnswerKind != model.AnswerKindImageUpload {
		return fmt.Errorf("%w: question %s does not take an image", ErrInvalidAnswer, questionID)
	}
	if h == nil || len(h.Data) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAnswer, ErrEmptyMedia)
	}

	if err := s.answers.Set(model.Answer{QuestionID: questionID, Kind: q.AnswerKind, Media: h}); err != nil {
		return err
	}
	s.media.Capture(questionID, h)
	return nil
}

// Next moves to the next question. It is a no-op on the last question.
func (s *ExamSession) Next() (int, error) { return s.move(1) }

// Previous moves to the previous question. It is a no-op on the first question.
func (s *ExamSession) Previous() (int, error) { return s.move(-1) }

func (s *ExamSession) move(delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.index, ErrSessionNotFound
	}
	if s.state != model.SessionStateExam {
		return s.index, ErrInvalidTransition
	}
	next := s.index + delta
	if next < 0 || next >= len(s.paper.Questions) {
		return s.index, nil
	}
	s.index = next
	return s.index, nil
}

// Submit runs the submit pipeline. Concurrent submits, including the
// auto-submit at time-out, share one pipeline run. The caller's
// cancellation does not abort a submission that has started.
func (s *ExamSession) Submit(ctx context.Context) (*SubmitOutcome, error) {
	return s.submit(context.WithoutCancel(ctx))
}

func (s *ExamSession) submit(ctx context.Context) (*SubmitOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if s.state != model.SessionStateExam {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	s.mu.Unlock()

	v, err, shared := s.flight.Do("submit", func() (any, error) {
		return s.runSubmit(ctx)
	})
	if shared {
		s.log.Debug().Msg("Submit coalesced with the run in flight")
	}
	if err != nil {
		return nil, err
	}
	return v.(*SubmitOutcome), nil
}

func (s *ExamSession) runSubmit(ctx context.Context) (*SubmitOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if s.state != model.SessionStateExam {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	s.submitting = true
	s.notices = dropNotices(s.notices, model.NoticeUploadFailed, model.NoticeSubmissionFailed)
	questions := s.paper.Questions
	s.answers.Freeze()
	s.mu.Unlock()

	resolution := s.media.Resolve(ctx, s.examID, s.learnerID)
	for _, f := range resolution.Failures {
		s.addNotice(model.Notice{Kind: model.NoticeUploadFailed, QuestionID: f.QuestionID, Detail: f.Err.Error()})
		s.emit(model.SessionEvent{Type: model.EventUploadWarning, QuestionID: f.QuestionID, Detail: f.Err.Error()})
	}

	entries := BuildSubmission(questions, s.answers.Snapshot(), resolution.Paths)

	grade, err := s.grading.Grade(ctx, s.examID, s.learnerID, entries)
	if err != nil {
		s.mu.Lock()
		s.submitting = false
		s.answers.Thaw()
		s.notices = append(s.notices, model.Notice{Kind: model.NoticeSubmissionFailed, Detail: err.Error()})
		s.mu.Unlock()

		s.log.Warn().Err(err).Msg("Submission failed, answers kept for retry")
		s.emit(model.SessionEvent{Type: model.EventSubmissionFailed, State: model.SessionStateExam, Detail: err.Error()})
		return nil, err
	}

	outcome := &SubmitOutcome{
		Entries:        entries,
		Grade:          grade,
		UploadFailures: resolution.Failures,
	}
	if grade.Passed() && s.opts.IssueCertificate {
		outcome.Certificate, outcome.CertificateErr = s.grading.Certify(ctx, s.learnerID, grade)
	}

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Cancel()
	}
	s.state = model.SessionStateResults
	s.submitting = false
	s.result = grade
	s.certificate = outcome.Certificate
	if outcome.CertificateErr != nil {
		s.notices = append(s.notices, model.Notice{Kind: model.NoticeCertificateFailed, Detail: outcome.CertificateErr.Error()})
	}
	s.mu.Unlock()

	if s.completions != nil {
		if err := s.completions.MarkCompleted(ctx, s.learnerID, s.examID); err != nil {
			s.log.Warn().Err(err).Msg("Completion cache write failed")
		}
	}

	score := grade.Score
	s.emit(model.SessionEvent{Type: model.EventGraded, State: model.SessionStateResults, Score: &score, Level: grade.Level})
	switch {
	case outcome.Certificate != nil:
		s.emit(model.SessionEvent{Type: model.EventCertificateIssued, Detail: outcome.Certificate.URL})
	case outcome.CertificateErr != nil:
		s.emit(model.SessionEvent{Type: model.EventCertificateFailed, Detail: outcome.CertificateErr.Error()})
	}
	s.emit(model.SessionEvent{Type: model.EventStateChanged, State: model.SessionStateResults})

	return outcome, nil
}

// Retake invalidates the prior attempt and returns to a clean welcome
// state. On failure nothing in the session changes.
func (s *ExamSession) Retake(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.retaking || s.submitting {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	var prior *model.GradeResult
	switch {
	case s.state == model.SessionStateWelcome && s.entry == model.EntryActionRetake:
		prior = s.prior
	case s.state == model.SessionStateResults && RetakeAllowed(s.result):
		prior = s.result
	default:
		s.mu.Unlock()
		return ErrRetakeNotAllowed
	}
	s.retaking = true
	s.mu.Unlock()

	err := s.retake.Invalidate(ctx, s.examID, s.learnerID, prior)

	s.mu.Lock()
	s.retaking = false
	if err != nil {
		s.notices = append(s.notices, model.Notice{Kind: model.NoticeRetakeFailed, Detail: err.Error()})
		s.mu.Unlock()

		s.log.Warn().Err(err).Msg("Retake aborted")
		s.emit(model.SessionEvent{Type: model.EventRetakeFailed, Detail: err.Error()})
		return err
	}

	if s.timer != nil {
		s.timer.Cancel()
		s.timer = nil
	}
	s.answers.Reset()
	s.media.Reset()
	s.index = 0
	s.result = nil
	s.certificate = nil
	s.prior = nil
	s.entry = model.EntryActionStart
	s.notices = nil
	s.state = model.SessionStateWelcome
	s.mu.Unlock()

	if s.completions != nil {
		if err := s.completions.Forget(ctx, s.learnerID, s.examID); err != nil {
			s.log.Warn().Err(err).Msg("Completion cache cleanup failed")
		}
	}

	s.log.Info().Msg("Retake completed")
	s.emit(model.SessionEvent{Type: model.EventRetakeCompleted, State: model.SessionStateWelcome})
	s.emit(model.SessionEvent{Type: model.EventStateChanged, State: model.SessionStateWelcome})
	return nil
}

// Close abandons the session and cancels its countdown. Every action on
// a closed session fails with ErrSessionNotFound; a submission already in
// flight still runs to completion.
func (s *ExamSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Cancel()
	}
	s.answers.Freeze()
	state := s.state
	s.mu.Unlock()

	s.cancel()
	s.log.Debug().Str("state", string(state)).Msg("Session closed")
}

// Snapshot returns a read-only view of the session.
func (s *ExamSession) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.SessionSnapshot{
		ExamID:          s.examID,
		LearnerID:       s.learnerID,
		State:           s.state,
		Entry:           s.entry,
		QuestionIndex:   s.index,
		AnsweredCount:   s.answers.Len(),
		Submitting:      s.submitting,
		Result:          s.result,
		Passed:          s.result.Passed(),
		Certificate:     s.certificate,
		RetakeAvailable: s.retakeAvailableLocked(),
	}
	if len(s.notices) > 0 {
		snap.Notices = append([]model.Notice(nil), s.notices...)
	}

	if s.paper != nil {
		exam := s.paper.Exam
		snap.Exam = &exam
		snap.QuestionCount = len(s.paper.Questions)
		snap.RemainingSeconds = s.paper.Exam.DurationSeconds
	}
	if s.state == model.SessionStateExam && s.paper != nil {
		q := s.paper.Questions[s.index]
		snap.Question = &q
		if a, ok := s.answers.Get(string(q.ID)); ok {
			snap.CurrentAnswer = &a
		}
		if s.timer != nil {
			snap.RemainingSeconds = s.timer.Remaining()
		}
	}
	if s.state == model.SessionStateResults {
		snap.RemainingSeconds = 0
	}
	return snap
}

func (s *ExamSession) retakeAvailableLocked() bool {
	switch s.state {
	case model.SessionStateWelcome:
		return s.entry == model.EntryActionRetake
	case model.SessionStateResults:
		return RetakeAllowed(s.result)
	}
	return false
}

func (s *ExamSession) onTick(t *Countdown, remaining int) {
	s.mu.Lock()
	current := s.timer == t && s.state == model.SessionStateExam
	s.mu.Unlock()
	if !current {
		return
	}
	s.emit(model.SessionEvent{Type: model.EventTick, State: model.SessionStateExam, Remaining: &remaining})
}

// onExpire forces the submit when time runs out. If that run fails the
// attempt is over: the session moves to results without a grade.
func (s *ExamSession) onExpire(t *Countdown) {
	s.mu.Lock()
	current := s.timer == t && s.state == model.SessionStateExam && !s.closed
	s.mu.Unlock()
	if !current {
		return
	}

	s.log.Info().Msg("Time is up, auto-submitting")
	s.emit(model.SessionEvent{Type: model.EventAutoSubmit, State: model.SessionStateExam})

	_, err := s.submit(s.ctx)
	if err == nil || errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrSessionNotFound) {
		return
	}
	s.expire(t, err)
}

func (s *ExamSession) expire(t *Countdown, cause error) {
	s.mu.Lock()
	if s.timer != t || s.state != model.SessionStateExam {
		s.mu.Unlock()
		return
	}
	s.state = model.SessionStateResults
	s.submitting = false
	s.result = nil
	s.notices = append(s.notices, model.Notice{Kind: model.NoticeAttemptExpired, Detail: cause.Error()})
	s.mu.Unlock()

	s.log.Error().Err(cause).Msg("Auto-submit failed, attempt ended without a grade")
	s.emit(model.SessionEvent{Type: model.EventAttemptExpired, State: model.SessionStateResults, Detail: cause.Error()})
	s.emit(model.SessionEvent{Type: model.EventStateChanged, State: model.SessionStateResults})
}

func (s *ExamSession) addNotice(n model.Notice) {
	s.mu.Lock()
	s.notices = append(s.notices, n)
	s.mu.Unlock()
}

func (s *ExamSession) emit(ev model.SessionEvent) {
	if s.notifier == nil {
		return
	}
	ev.ExamID = s.examID
	ev.LearnerID = s.learnerID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.notifier.Notify(context.Background(), ev)
}

func dropNotices(notices []model.Notice, kinds ...model.NoticeKind) []model.Notice {
	out := notices[:0]
	for _, n := range notices {
		drop := false
		for _, k := range kinds {
			if n.Kind == k {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, n)
		}
	}
	return out
}
