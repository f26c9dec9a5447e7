package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/formforge/formforge-backend/internal/config"
	"github.com/formforge/formforge-backend/internal/database"
	"github.com/formforge/formforge-backend/internal/handler"
	"github.com/formforge/formforge-backend/internal/logger"
	"github.com/formforge/formforge-backend/internal/repository"
	"github.com/formforge/formforge-backend/internal/router"
	"github.com/formforge/formforge-backend/internal/service"
	"github.com/formforge/formforge-backend/internal/validator"
	"github.com/formforge/formforge-backend/internal/worker"
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
		Msg("Starting FormForge Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
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
	userRepo := repository.NewUserRepository(pool)
	formRepo := repository.NewFormRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewFormSessionRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo)
	formService := service.NewFormService(formRepo, questionRepo, rdb, log)
	events := service.NewRedisEventPublisher(rdb, log)
	sessionService := service.NewSessionService(
		sessionRepo,
		responseRepo,
		formService,
		service.NewViolationTracker(violationRepo),
		events,
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, userRepo),
		Form:       handler.NewFormHandler(formService, sessionService, sessionRepo, violationRepo),
		Respondent: handler.NewRespondentHandler(sessionService, formService),
		Monitor:    handler.NewMonitorHandler(rdb, formService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	if cfg.NotifyWebhookURL != "" {
		notifyWorker := worker.NewNotifyWorker(rdb, cfg.NotifyWebhookURL, log)
		go notifyWorker.Start(workerCtx)
	} else {
		log.Info().Msg("NOTIFY_WEBHOOK_URL not set, notify worker disabled")
	}

	if cfg.SweepInterval > 0 {
		sweepWorker := worker.NewSweepWorker(sessionService, cfg.SweepInterval, log)
		go sweepWorker.Start(workerCtx)
	} else {
		log.Info().Msg("Expiry sweep disabled, sessions expire lazily on access")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
