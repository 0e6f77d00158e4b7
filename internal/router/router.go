package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session  *handler.SessionHandler
	Progress *handler.ProgressHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept-Language", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Localize errors raised before authentication from Accept-Language.
	router.Use(middleware.Locale())

	// Apply brotli middleware globally. WebSocket handshakes pass through.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", handlers.System.Health)

	// ─── 1. Learner Group (JWT + Rate Limit) ───────────────────────────
	learnerAPI := router.Group("/api/v1/learner")
	learnerAPI.Use(
		middleware.RequireLearnerJWT(authService),
		middleware.Locale(),
		limiter.Middleware(),
		middleware.NoStore(),
	)
	{
		learnerAPI.GET("/completions", handlers.Progress.ListCompletions)
		learnerAPI.GET("/exams/:exam_id/history", middleware.MaxAge(30), handlers.Progress.GetHistory)

		session := learnerAPI.Group("/exams/:exam_id/session")
		{
			session.POST("", handlers.Session.OpenSession)
			session.GET("", handlers.Session.GetSession)
			session.DELETE("", handlers.Session.AbandonSession)
			session.POST("/start", handlers.Session.StartExam)
			session.PUT("/answers/:question_id", handlers.Session.SaveAnswer)
			session.POST("/answers/:question_id/media", handlers.Session.UploadAnswerMedia)
			session.POST("/next", handlers.Session.NextQuestion)
			session.POST("/previous", handlers.Session.PreviousQuestion)
			session.POST("/submit", handlers.Session.SubmitExam)
			session.POST("/retake", handlers.Session.RetakeExam)
		}
	}

	// ─── 2. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireLearnerWSAuth(authService), middleware.Locale())
	{
		ws.GET("/learner/exams/:exam_id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. System Group (JWT) ─────────────────────────────────────────
	systemAPI := router.Group("/api/v1/system")
	systemAPI.Use(middleware.RequireLearnerJWT(authService))
	{
		systemAPI.GET("/stats", handlers.System.Stats)
	}

	return router
}
