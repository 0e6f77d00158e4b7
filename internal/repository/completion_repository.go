package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-assessment/internal/config"
)

// completionTTL bounds how long a learner's cached completions survive
// without any write.
const completionTTL = 90 * 24 * time.Hour

// CompletionRepository keeps the local set of exams each learner completed.
type CompletionRepository struct {
	rdb *redis.Client
}

// NewCompletionRepository creates a new CompletionRepository.
func NewCompletionRepository(rdb *redis.Client) *CompletionRepository {
	return &CompletionRepository{rdb: rdb}
}

// MarkCompleted adds the exam to the learner's completed set.
func (r *CompletionRepository) MarkCompleted(ctx context.Context, learnerID, examID string) error {
	key := config.CacheKey.LearnerCompletedExamsKey(learnerID)
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, key, examID)
	pipe.Expire(ctx, key, completionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// Forget removes the exam from the learner's completed set.
func (r *CompletionRepository) Forget(ctx context.Context, learnerID, examID string) error {
	if err := r.rdb.SRem(ctx, config.CacheKey.LearnerCompletedExamsKey(learnerID), examID).Err(); err != nil {
		return fmt.Errorf("forget completion: %w", err)
	}
	return nil
}

// CompletedExams lists the exams the learner completed.
func (r *CompletionRepository) CompletedExams(ctx context.Context, learnerID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, config.CacheKey.LearnerCompletedExamsKey(learnerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list completed exams: %w", err)
	}
	return ids, nil
}
