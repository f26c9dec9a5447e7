package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/formforge/formforge-backend/internal/config"
	"github.com/formforge/formforge-backend/internal/handler"
	"github.com/formforge/formforge-backend/internal/middleware"
	"github.com/formforge/formforge-backend/internal/response"
	"github.com/formforge/formforge-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Form       *handler.FormHandler
	Respondent *handler.RespondentHandler
	Monitor    *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Compress large JSON payloads (results listings, form payloads).
	router.Use(middleware.Compress())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Respondent traffic is anonymous, so the write paths are rate limited:
	// session starts by IP, per-session traffic by session id. Answer
	// autosaves get a generous budget; violation reports a tight one.
	startLimiter := middleware.NewRateLimiter(10, time.Minute, 10)
	sessionLimiter := middleware.NewRateLimiter(120, time.Minute, 240)

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.GET("/me", middleware.RequireCreatorJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Respondent Group (No Auth) ─────────────────────────────────
	api := router.Group("/api/v1")
	{
		api.POST("/forms/:form_id/sessions",
			startLimiter.Middleware(middleware.KeyByIP),
			handlers.Respondent.StartSession)

		sessions := api.Group("/sessions/:session_id")
		sessions.Use(sessionLimiter.Middleware(middleware.KeyBySessionParam))
		{
			sessions.GET("", handlers.Respondent.Poll)
			sessions.GET("/form", handlers.Respondent.GetSessionForm)
			sessions.PUT("/answers/:question_id", handlers.Respondent.RecordAnswer)
			sessions.POST("/violations", handlers.Respondent.ReportViolation)
			sessions.POST("/submit", handlers.Respondent.Submit)
		}
	}

	// ─── 3. Creator Group (JWT) ────────────────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireCreatorJWT(authService))
	{
		admin.POST("/forms", handlers.Form.Create)
		admin.GET("/forms", handlers.Form.List)
		admin.GET("/forms/:form_id", handlers.Form.Get)
		admin.PUT("/forms/:form_id", handlers.Form.Update)
		admin.DELETE("/forms/:form_id", handlers.Form.Delete)
		admin.POST("/forms/:form_id/publish", handlers.Form.Publish)
		admin.POST("/forms/:form_id/close", handlers.Form.Close)
		admin.PUT("/forms/:form_id/questions", handlers.Form.ReplaceQuestions)
		admin.GET("/forms/:form_id/sessions", handlers.Form.ListSessions)
		admin.GET("/forms/:form_id/sessions/:session_id", handlers.Form.GetSessionDetail)
	}

	// ─── 4. WebSocket Group (Creator WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCreatorWSAuth(authService))
	{
		ws.GET("/forms/:form_id/monitor", handlers.Monitor.MonitorStream)
	}

	return router
}
