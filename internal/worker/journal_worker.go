package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const (
	JournalBatchSize    = 100
	JournalBatchTimeout = 2 * time.Second
	JournalPollTimeout  = 1 * time.Second
)

// attemptEventNamespace seeds the name-based ids of journal rows, so the
// same payload always maps to the same row.
var attemptEventNamespace = uuid.MustParse("5b0d7a52-3c1e-4f7e-9a55-1f0f3b6c2d41")

// AttemptEventWriter persists journal rows.
type AttemptEventWriter interface {
	InsertBatch(ctx context.Context, events []model.AttemptEvent) error
	Insert(ctx context.Context, e model.AttemptEvent) error
}

// JournalWorker drains published session events from Redis into the
// attempt journal.
type JournalWorker struct {
	store AttemptEventWriter
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewJournalWorker(store AttemptEventWriter, rdb *redis.Client, log zerolog.Logger) *JournalWorker {
	return &JournalWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "journal_worker").Logger(),
	}
}

type journalItem struct {
	raw   string
	event model.AttemptEvent
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *JournalWorker) Start(ctx context.Context) {
	w.log.Info().Msg("JournalWorker started")

	batch := make([]journalItem, 0, JournalBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= JournalBatchSize || time.Since(lastFlush) >= JournalBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, JournalPollTimeout, config.WorkerKey.PersistAttemptEventsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			ev, err := toAttemptEvent([]byte(item[1]))
			if err != nil {
				w.log.Error().Err(err).Msg("Dropping unreadable journal payload")
				continue
			}

			batch = append(batch, journalItem{raw: item[1], event: ev})
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with per-row fallback
// ----------------------------------------------------------------

func (w *JournalWorker) flushSafe(ctx context.Context, batch []journalItem) {
	if len(batch) == 0 {
		return
	}

	events := make([]model.AttemptEvent, len(batch))
	for i, it := range batch {
		events[i] = it.event
	}

	if err := w.store.InsertBatch(ctx, events); err != nil {
		w.log.Warn().Err(err).Int("size", len(batch)).Msg("Bulk journal insert failed, using fallback")

		for _, it := range batch {
			if err := w.store.Insert(ctx, it.event); err != nil {
				w.log.Error().Err(err).Str("event_id", it.event.ID.String()).Msg("Insert failed, requeueing")
				w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptEventsQueue, it.raw)
			}
		}
		return
	}

	w.log.Debug().Int("size", len(batch)).Msg("Journal batch persisted")
}

// toAttemptEvent turns a published session event into a journal row. The
// row id is derived from the payload, so a requeued or duplicated payload
// collapses into one row.
func toAttemptEvent(raw []byte) (model.AttemptEvent, error) {
	var ev model.SessionEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.AttemptEvent{}, fmt.Errorf("decode session event: %w", err)
	}
	if ev.Type == "" || ev.ExamID == "" || ev.LearnerID == "" {
		return model.AttemptEvent{}, fmt.Errorf("session event is missing type, exam or learner")
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	return model.AttemptEvent{
		ID:         uuid.NewSHA1(attemptEventNamespace, raw),
		ExamID:     ev.ExamID,
		LearnerID:  ev.LearnerID,
		Type:       ev.Type,
		Score:      ev.Score,
		Detail:     journalDetail(ev),
		OccurredAt: at,
	}, nil
}

// journalDetail keeps the fields that have no column of their own.
func journalDetail(ev model.SessionEvent) string {
	switch {
	case ev.QuestionID != "" && ev.Detail != "":
		return fmt.Sprintf("question %s: %s", ev.QuestionID, ev.Detail)
	case ev.QuestionID != "":
		return "question " + ev.QuestionID
	case ev.Detail != "":
		return ev.Detail
	case ev.Level != "":
		return "level " + ev.Level
	case ev.State != "":
		return "state " + string(ev.State)
	}
	return ""
}
