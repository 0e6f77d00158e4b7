package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/model"
)

type sessionKey struct {
	examID    string
	learnerID string
}

// ExamSessionService keeps the live session of every learner and exam pair.
type ExamSessionService struct {
	deps              SessionDeps
	issueCertificates bool
	log               zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*ExamSession
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewExamSessionService creates a new ExamSessionService. issueCertificates
// is the default for sessions that do not choose for themselves.
func NewExamSessionService(deps SessionDeps, issueCertificates bool, log zerolog.Logger) *ExamSessionService {
	if deps.NewTicker == nil {
		deps.NewTicker = NewTimeTicker
	}
	deps.Log = log
	ctx, cancel := context.WithCancel(context.Background())

	return &ExamSessionService{
		deps:              deps,
		issueCertificates: issueCertificates,
		log:               log.With().Str("component", "exam_session_service").Logger(),
		sessions:          make(map[sessionKey]*ExamSession),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Open loads the session for a learner. A session in the exam state is
// resumed as is; any other session is replaced and loaded again so the
// entry decision reflects the grading service.
func (s *ExamSessionService) Open(ctx context.Context, examID, learnerID string, req model.OpenSessionRequest) (*ExamSession, *model.LoadResult, error) {
	key := sessionKey{examID: examID, learnerID: learnerID}

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok {
		if existing.State() == model.SessionStateExam {
			s.mu.Unlock()
			snap := existing.Snapshot()
			return existing, &model.LoadResult{
				Status:   model.LoadStatusReady,
				Entry:    snap.Entry,
				Snapshot: &snap,
			}, nil
		}
		existing.Close()
	}

	opts := SessionOptions{IssueCertificate: s.issueCertificates}
	if req.IssueCertificate != nil {
		opts.IssueCertificate = *req.IssueCertificate
	}
	sess := NewExamSession(s.ctx, examID, learnerID, s.deps, opts)
	s.sessions[key] = sess
	s.mu.Unlock()

	res, err := sess.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", examID).
			Str("learner_id", learnerID).
			Msg("Session load failed")
		return sess, res, err
	}
	return sess, res, nil
}

// Get returns the live session of a learner.
func (s *ExamSessionService) Get(examID, learnerID string) (*ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionKey{examID: examID, learnerID: learnerID}]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Abandon closes and forgets the learner's session.
func (s *ExamSessionService) Abandon(examID, learnerID string) error {
	key := sessionKey{examID: examID, learnerID: learnerID}

	s.mu.Lock()
	sess, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	sess.Close()
	return nil
}

// Count returns the number of live sessions.
func (s *ExamSessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every session. Submissions already in flight finish on
// their own.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[sessionKey]*ExamSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	s.cancel()
	s.log.Info().Int("sessions", len(sessions)).Msg("Exam sessions closed")
}
