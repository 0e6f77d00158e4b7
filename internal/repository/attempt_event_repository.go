package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// AttemptEventRepository handles the attempt journal in PostgreSQL.
type AttemptEventRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptEventRepository creates a new AttemptEventRepository.
func NewAttemptEventRepository(pool *pgxpool.Pool) *AttemptEventRepository {
	return &AttemptEventRepository{pool: pool}
}

// InsertBatch writes many events in one statement. Rows whose id already
// exists are skipped so a requeued batch is harmless.
func (r *AttemptEventRepository) InsertBatch(ctx context.Context, events []model.AttemptEvent) error {
	if len(events) == 0 {
		return nil
	}
	n := len(events)

	ids := make([]uuid.UUID, 0, n)
	examIDs := make([]string, 0, n)
	learnerIDs := make([]string, 0, n)
	types := make([]string, 0, n)
	scores := make([]*float64, 0, n)
	details := make([]string, 0, n)
	occurredAts := make([]time.Time, 0, n)

	for _, e := range events {
		ids = append(ids, e.ID)
		examIDs = append(examIDs, e.ExamID)
		learnerIDs = append(learnerIDs, e.LearnerID)
		types = append(types, string(e.Type))
		scores = append(scores, e.Score)
		details = append(details, e.Detail)
		occurredAts = append(occurredAts, e.OccurredAt)
	}

	query := `
		INSERT INTO attempt_events (id, exam_id, learner_id, event_type, score, detail, occurred_at)
		SELECT u.id, u.exam_id, u.learner_id, u.event_type, u.score, u.detail, u.occurred_at
		FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::text[],
			$4::text[],
			$5::float8[],
			$6::text[],
			$7::timestamptz[]
		) AS u (id, exam_id, learner_id, event_type, score, detail, occurred_at)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, ids, examIDs, learnerIDs, types, scores, details, occurredAts); err != nil {
		return fmt.Errorf("insert attempt events: %w", err)
	}
	return nil
}

// Insert writes a single event.
func (r *AttemptEventRepository) Insert(ctx context.Context, e model.AttemptEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_events (id, exam_id, learner_id, event_type, score, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ExamID, e.LearnerID, string(e.Type), e.Score, e.Detail, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt event: %w", err)
	}
	return nil
}

// ListByLearnerExam returns a learner's events for one exam, newest first.
func (r *AttemptEventRepository) ListByLearnerExam(ctx context.Context, learnerID, examID string, limit int) ([]model.AttemptEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, learner_id, event_type, score, detail, occurred_at
		 FROM attempt_events
		 WHERE learner_id = $1 AND exam_id = $2
		 ORDER BY occurred_at DESC
		 LIMIT $3`, learnerID, examID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempt events: %w", err)
	}
	defer rows.Close()

	var events []model.AttemptEvent
	for rows.Next() {
		var e model.AttemptEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.ExamID, &e.LearnerID, &eventType, &e.Score, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan attempt event: %w", err)
		}
		e.Type = model.EventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}
