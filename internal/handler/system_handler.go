package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const healthTimeout = 3 * time.Second

// SystemHandler reports liveness of the backing stores and runtime stats.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	sessions  *service.ExamSessionService
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, sessions *service.ExamSessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemStats struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`

	// Sessions and Queues
	ActiveSessions     int   `json:"active_sessions"`
	QueueAttemptEvents int64 `json:"queue_attempt_events"`
	DBTotalConns       int32 `json:"db_total_conns"`
	DBIdleConns        int32 `json:"db_idle_conns"`
}

// Health godoc
// GET /health
// Pings Postgres and Redis concurrently.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := h.pool.Ping(gctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := h.rdb.Ping(gctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		h.log.Warn().Err(err).Msg("Health check failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Stats godoc
// GET /api/v1/system/stats
func (h *SystemHandler) Stats(c *gin.Context) {
	s := systemStats{
		Timestamp:      time.Now().Unix(),
		Uptime:         formatDuration(time.Since(h.startTime)),
		Goroutines:     runtime.NumGoroutine(),
		GoVersion:      runtime.Version(),
		ActiveSessions: h.sessions.Count(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAlloc = ms.HeapAlloc
	s.NumGC = ms.NumGC

	if n, err := h.rdb.LLen(c.Request.Context(), config.WorkerKey.PersistAttemptEventsQueue).Result(); err == nil {
		s.QueueAttemptEvents = n
	}

	stat := h.pool.Stat()
	s.DBTotalConns = stat.TotalConns()
	s.DBIdleConns = stat.IdleConns()

	response.Success(c, http.StatusOK, s)
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
