// taskchat - AI-powered task manager server
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

	"github.com/asuleiman/taskchat/internal/api"
	"github.com/asuleiman/taskchat/internal/auth"
	"github.com/asuleiman/taskchat/internal/chat"
	"github.com/asuleiman/taskchat/internal/config"
	"github.com/asuleiman/taskchat/internal/llm"
	"github.com/asuleiman/taskchat/internal/middleware"
	"github.com/asuleiman/taskchat/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "model", cfg.Model.Name)

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

	if cfg.Model.APIKey == "" {
		slog.Warn("MODEL_API_KEY is not set, chat requests will fail upstream")
	}
	capability := llm.NewClient(llm.Config{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Name,
	})

	auditLog, err := chat.NewAuditLogger(chat.AuditLogConfig{
		Enabled:       cfg.ChatLog.Enabled,
		Dir:           cfg.ChatLog.Dir,
		GlobalEnabled: cfg.ChatLog.GlobalEnabled,
		GlobalPath:    cfg.ChatLog.GlobalPath,
		QueueSize:     cfg.ChatLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize chat audit log", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditLog.Close() }()

	orchestrator := chat.NewOrchestrator(repo, repo, capability, auditLog)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(repo, orchestrator, issuer)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	handler.RegisterRoutes(r)

	// Create server. Chat turns block on the model capability, so the
	// write timeout is generous.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
