// NoMo Phone - focus service for the pet island app
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

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/api"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/blocking"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/config"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/identity"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/middleware"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/push"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/rewards"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/store"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/timer"
	"github.com/glebschkv/phone-pet-paradise-sub011/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	slog.Info("Starting focus service", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath,
		store.WithWriteRetry(cfg.Retry.DatabaseMaxRetries, cfg.Retry.DatabaseRetryBaseDelay))
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

	// Initialize services.
	dm := push.NewDeviceManager()
	retrier := blocking.NewRetrier(repo, dm,
		cfg.Retry.BlockingMaxAttempts,
		cfg.Retry.BlockingRetryBaseDelay,
		cfg.Timeout.StopCommand,
	)
	guard := timer.NewGuard(repo, retrier, cfg.MaxSessionDuration, nil)
	engine := rewards.NewEngine()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, dm, engine, guard, cfg)
	timerHandler := api.NewTimerHandler(baseHandler)
	rewardsHandler := api.NewRewardsHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, cfg)
	wsHandler := push.NewHandler(dm, guard, cfg.FrontendURL, cfg.IsDevelopment())

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

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	timerHandler.RegisterRoutes(r)
	rewardsHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/device", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket channels stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run the startup expiry check before accepting traffic, then keep the
	// sweep running for devices that never report back.
	guard.CheckOnStartup(ctx)
	timer.StartSweepWorker(ctx, guard, cfg.GuardSweepInterval)
	slog.Info("Expiry guard active", "sweep_interval", cfg.GuardSweepInterval)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
