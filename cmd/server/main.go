// Wisio Support Desk Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/wisio/supportdesk/internal/api"
	"github.com/wisio/supportdesk/internal/config"
	"github.com/wisio/supportdesk/internal/dialogue"
	"github.com/wisio/supportdesk/internal/domain"
	"github.com/wisio/supportdesk/internal/eligibility"
	"github.com/wisio/supportdesk/internal/identity"
	"github.com/wisio/supportdesk/internal/middleware"
	"github.com/wisio/supportdesk/internal/responder"
	"github.com/wisio/supportdesk/internal/store"
	"github.com/wisio/supportdesk/internal/transcriptlog"
	"github.com/wisio/supportdesk/internal/ws"
	"github.com/wisio/supportdesk/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Collaborator clients. Both are optional: without them the engine still
	// runs the scripted branches and degrades to escalation where it would
	// have called out.
	var evaluator dialogue.Evaluator
	if cfg.EvaluationURL != "" {
		evaluator, err = eligibility.NewClient(eligibility.Config{URL: cfg.EvaluationURL}, logger)
		if err != nil {
			slog.Error("Failed to initialize evaluation client", "error", err)
			os.Exit(1)
		}
		slog.Info("Evaluation client ready", "url", cfg.EvaluationURL)
	} else {
		evaluator = unavailableEvaluator{}
		slog.Info("Evaluation endpoint not configured, refund checks will escalate")
	}

	var fallback dialogue.Responder
	if cfg.GenerationURL != "" {
		fallback, err = responder.NewClient(responder.Config{URL: cfg.GenerationURL}, logger)
		if err != nil {
			slog.Error("Failed to initialize generation client", "error", err)
			os.Exit(1)
		}
		slog.Info("Generation client ready", "url", cfg.GenerationURL)
	} else {
		fallback = unavailableResponder{}
		slog.Info("Generation endpoint not configured, free-text turns will escalate")
	}

	transcripts, err := transcriptlog.New(transcriptlog.Config{
		Enabled:       cfg.TranscriptLog.Enabled,
		Dir:           cfg.TranscriptLog.Dir,
		GlobalEnabled: cfg.TranscriptLog.GlobalEnabled,
		GlobalPath:    cfg.TranscriptLog.GlobalPath,
		QueueSize:     cfg.TranscriptLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Warn("Failed to close transcript logger", "error", closeErr)
		}
	}()

	// Dialogue session registry.
	registry := dialogue.NewRegistry(dialogue.Deps{
		Evaluator:    evaluator,
		Responder:    fallback,
		Tickets:      repo,
		Logger:       logger,
		SupportPhone: cfg.SupportPhone,
	}, repo, logEvents(transcripts))

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	supportHandler := api.NewSupportHandler(baseHandler, registry, cfg)
	healthHandler := api.NewHealthHandler(repo)
	streamHandler := ws.NewStreamHandler(registry, repo, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	supportHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/support", streamHandler.ServeHTTP)

	// Serve embedded demo widget (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket streams stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background workers.
	registry.StartJanitor(ctx, cfg.JanitorInterval, cfg.SessionTTL)
	slog.Info("Session janitor started", "session_ttl", cfg.SessionTTL)
	startArchiveCleanup(ctx, repo, cfg.ArchiveTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// logEvents bridges engine events into the transcript log.
func logEvents(transcripts transcriptlog.Logger) dialogue.EventHook {
	return func(userID, sessionKey string, ev dialogue.Event) {
		if ev.Type != dialogue.EventMessage || ev.Message == nil {
			return
		}
		direction := "outbound"
		eventType := "user_message"
		if ev.Message.Speaker == domain.SpeakerBot {
			direction = "inbound"
			eventType = "bot_message"
		}
		transcripts.Log(transcriptlog.Event{
			UserID:     userID,
			SessionID:  sessionKey,
			Direction:  direction,
			EventType:  eventType,
			ContentRaw: ev.Message.Text,
		})
	}
}

// startArchiveCleanup periodically removes expired transcript archives.
func startArchiveCleanup(ctx context.Context, repo store.Repository, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := repo.CleanupExpiredArchives(ctx, ttl)
				if err != nil {
					slog.Warn("Archive cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("Archive cleanup complete", "deleted", n)
				}
			}
		}
	}()
}

// unavailableEvaluator stands in when no evaluation endpoint is configured.
// Returning an error makes the engine escalate instead of guessing.
type unavailableEvaluator struct{}

func (unavailableEvaluator) Evaluate(context.Context, dialogue.EvaluationRequest) (*domain.Evaluation, error) {
	return nil, errors.New("evaluation endpoint not configured")
}

// unavailableResponder stands in when no generation endpoint is configured.
type unavailableResponder struct{}

func (unavailableResponder) Respond(context.Context, string) (string, error) {
	return "", errors.New("generation endpoint not configured")
}
