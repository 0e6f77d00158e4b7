package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ExamService serves exam papers from Redis, falling back to the platform.
// Concurrent misses for the same exam share one platform request.
type ExamService struct {
	source ExamSource
	rdb    *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	log    zerolog.Logger
}

// NewExamService creates a new ExamService. A zero ttl disables caching.
func NewExamService(source ExamSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamService {
	return &ExamService{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExam returns the exam paper, cached for the configured ttl.
func (s *ExamService) GetExam(ctx context.Context, examID string) (*model.ExamPaper, error) {
	if s.rdb == nil || s.ttl <= 0 {
		return s.source.GetExam(ctx, examID)
	}

	key := config.CacheKey.ExamPaperKey(examID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			return &paper, nil
		}
		s.log.Warn().Str("exam_id", examID).Msg("Discarding unreadable cached exam paper")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Exam cache read failed")
	}

	v, err, _ := s.group.Do(examID, func() (any, error) {
		paper, err := s.source.GetExam(ctx, examID)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(paper)
		if err != nil {
			return nil, fmt.Errorf("marshal exam paper: %w", err)
		}
		if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("Exam cache write failed")
		}
		return paper, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers own their copy.
	shared := v.(*model.ExamPaper)
	paper := *shared
	paper.Questions = append([]model.Question(nil), shared.Questions...)
	return &paper, nil
}
