package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/router"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
	"github.com/stemsi/exstem-assessment/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("platform", cfg.PlatformBaseURL).
		Msg("Starting ExStem Assessment")

	// ─── Initialize Localization and Validator ─────────────────────────
	if err := i18n.Init(cfg.DefaultLocale, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to load message catalogs")
	}
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	platform := repository.NewPlatformClient(cfg.PlatformBaseURL, cfg.PlatformToken, cfg.PlatformTimeout, nil, log)
	examRepo := repository.NewExamRepository(platform)
	submissionRepo := repository.NewSubmissionRepository(platform)
	certificateRepo := repository.NewCertificateRepository(platform)
	completionRepo := repository.NewCompletionRepository(rdb)
	eventRepo := repository.NewAttemptEventRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	examService := service.NewExamService(examRepo, rdb, cfg.ExamCacheTTL, log)
	stager := service.NewMediaStager(cfg.MaxUploadBytes, cfg.MaxImageDimension)

	sessionService := service.NewExamSessionService(service.SessionDeps{
		Exams:             examService,
		Grading:           submissionRepo,
		Media:             submissionRepo,
		Certificates:      certificateRepo,
		Completions:       completionRepo,
		Notifier:          service.NewRedisNotifier(rdb, log),
		Stager:            stager,
		UploadConcurrency: cfg.UploadConcurrency,
	}, cfg.IssueCertificates, log)
	progressService := service.NewProgressService(submissionRepo, completionRepo, eventRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:  handler.NewSessionHandler(sessionService, stager, cfg.MaxUploadBytes, log),
		Progress: handler.NewProgressHandler(progressService, log),
		WS:       handler.NewWSHandler(rdb, sessionService, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(pool, rdb, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	journalWorker := worker.NewJournalWorker(eventRepo, rdb, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		journalWorker.Start(workerCtx)
	}()

	limiter := middleware.NewRateLimiter(cfg.ActionRateLimit, time.Minute)
	go limiter.Run(workerCtx.Done())

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (10s timeout so running submits
	//    can finish).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop every session timer.
	sessionService.Shutdown()

	// 3. Stop background workers and wait for the journal to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
