// Package main is the entry point for the notekeeper API server.
//
// It loads configuration, connects the Postgres pool, wires the repositories,
// the auth service, and the reminder scheduler on top of the durable delay
// store, mounts the HTTP routes, and serves until a shutdown signal arrives.
//
// Reminder dispatch does not happen here: the reminder-worker binary runs the
// delay store consumer. The API only enqueues and cancels schedule entries.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"notekeeper/internal/api/handlers"
	"notekeeper/internal/auth"
	"notekeeper/internal/config"
	"notekeeper/internal/core"
	"notekeeper/internal/db"
	"notekeeper/internal/delay"
	"notekeeper/internal/reminders"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("notekeeper API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	// Repositories.
	noteRepo := db.NewNoteRepository(pool)
	userRepo := db.NewUserRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)

	// Durable delay store. The API side only enqueues and cancels; the
	// consumer loop lives in the reminder-worker binary.
	store := delay.NewPostgresStore(pool)

	scheduler := reminders.NewScheduler(noteRepo, userRepo, store, delay.AttemptPolicy{
		MaxAttempts: cfg.Delay.MaxAttempts,
		Backoff:     cfg.Delay.RetryBackoff,
	}, logger)

	authSvc := auth.NewService(userRepo, sessionRepo, nil, auth.Config{
		SessionTTL:        cfg.Auth.SessionTTL,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	}, logger)

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = authSvc
	srv.DB = pool

	authHandler := handlers.NewAuthHandler(authSvc, srv.Validator, logger)
	noteHandler := handlers.NewNoteHandler(noteRepo, scheduler, srv.Validator, logger)
	reminderHandler := handlers.NewReminderHandler(scheduler, srv.Validator, logger)

	srv.MountRoutes(func(r chi.Router) {
		authHandler.RegisterRoutes(r)
		noteHandler.RegisterRoutes(r)
		reminderHandler.RegisterRoutes(r)
	})

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
