package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-assessment/internal/model"
)

const progressConcurrency = 4

// Completion sources reported by ProgressService.
const (
	CompletionSourceServer = "server"
	CompletionSourceCache  = "cache"
	CompletionSourceBoth   = "both"
)

// AttemptJournal reads the persisted attempt events.
type AttemptJournal interface {
	ListByLearnerExam(ctx context.Context, learnerID, examID string, limit int) ([]model.AttemptEvent, error)
}

// ProgressService reports what a learner has completed and what happened
// during past attempts.
type ProgressService struct {
	grading GradingClient
	cache   CompletionCache
	journal AttemptJournal
	log     zerolog.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(grading GradingClient, cache CompletionCache, journal AttemptJournal, log zerolog.Logger) *ProgressService {
	return &ProgressService{
		grading: grading,
		cache:   cache,
		journal: journal,
		log:     log.With().Str("component", "progress_service").Logger(),
	}
}

// Completions returns the completion status of each exam. An exam counts as
// completed when the grading service has a grade for it or the local cache
// remembers it. Server completions missing from the cache are written back.
func (s *ProgressService) Completions(ctx context.Context, learnerID string, examIDs []string) ([]model.ExamCompletion, error) {
	cached := make(map[string]bool)
	if s.cache != nil {
		ids, err := s.cache.CompletedExams(ctx, learnerID)
		if err != nil {
			s.log.Warn().Err(err).Str("learner_id", learnerID).Msg("Completion cache unavailable")
		}
		for _, id := range ids {
			cached[id] = true
		}
	}

	grades := make([]*model.GradeResult, len(examIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(progressConcurrency)
	for i, examID := range examIDs {
		g.Go(func() error {
			grade, err := s.grading.ComputeGrade(gctx, examID, learnerID)
			if err != nil {
				return fmt.Errorf("grade for exam %s: %w", examID, err)
			}
			grades[i] = grade
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.ExamCompletion, len(examIDs))
	for i, examID := range examIDs {
		onServer := grades[i] != nil
		inCache := cached[examID]

		c := model.ExamCompletion{ExamID: examID, Completed: onServer || inCache, Grade: grades[i]}
		switch {
		case onServer && inCache:
			c.Source = CompletionSourceBoth
		case onServer:
			c.Source = CompletionSourceServer
			if s.cache != nil {
				if err := s.cache.MarkCompleted(ctx, learnerID, examID); err != nil {
					s.log.Warn().Err(err).Str("exam_id", examID).Msg("Completion cache reconcile failed")
				}
			}
		case inCache:
			c.Source = CompletionSourceCache
		}
		out[i] = c
	}
	return out, nil
}

// History returns the journaled events of a learner's attempts, newest first.
func (s *ProgressService) History(ctx context.Context, learnerID, examID string, limit int) ([]model.AttemptEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.journal.ListByLearnerExam(ctx, learnerID, examID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempt events: %w", err)
	}
	return events, nil
}
