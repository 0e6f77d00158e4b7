package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// Notifier receives session events. It is handed to each session at
// construction and is the only way a session reports asynchronous
// happenings such as ticks and auto-submits.
type Notifier interface {
	Notify(ctx context.Context, ev model.SessionEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev model.SessionEvent)

func (f NotifierFunc) Notify(ctx context.Context, ev model.SessionEvent) { f(ctx, ev) }

// RedisNotifier publishes events on the session's Pub/Sub channel and
// queues the journaled ones for the journal worker.
type RedisNotifier struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisNotifier creates a new RedisNotifier.
func NewRedisNotifier(rdb *redis.Client, log zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		rdb: rdb,
		log: log.With().Str("component", "redis_notifier").Logger(),
	}
}

// Notify never fails the caller; delivery errors are logged.
func (n *RedisNotifier) Notify(ctx context.Context, ev model.SessionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Str("type", string(ev.Type)).Msg("Marshal event")
		return
	}

	pipe := n.rdb.Pipeline()
	pipe.Publish(ctx, config.CacheKey.SessionEventChannel(ev.ExamID, ev.LearnerID), payload)
	if ev.Type.Journaled() {
		pipe.RPush(ctx, config.WorkerKey.PersistAttemptEventsQueue, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		n.log.Warn().Err(err).
			Str("type", string(ev.Type)).
			Str("exam_id", ev.ExamID).
			Str("learner_id", ev.LearnerID).
			Msg("Event delivery failed")
	}
}
