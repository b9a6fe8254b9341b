// Package main is the entry point for the reminder worker.
//
// The worker runs two loops side by side until a shutdown signal arrives:
//
//   - The delay store runner, which claims due schedule entries from
//     Postgres and dispatches reminder emails through the dispatcher with
//     per-entry retry and exhaustion handling.
//   - The maintenance loop, which archives exhausted entries past their
//     retention window, prunes expired sessions, and purges old trash
//     (cancelling any live reminder schedule before a note is purged).
//
// Running dispatch in a separate binary keeps the API latency-sensitive path
// free of polling work and lets the worker be scaled and restarted
// independently.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"notekeeper/internal/config"
	"notekeeper/internal/db"
	"notekeeper/internal/delay"
	"notekeeper/internal/external"
	"notekeeper/internal/reminders"
	"notekeeper/internal/types"
)

// trashPurgeBatchSize caps how many trashed notes one maintenance pass purges.
const trashPurgeBatchSize = 200

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("reminder worker starting",
		"environment", cfg.Environment,
		"email_provider", cfg.Email.Provider,
		"poll_interval", cfg.Delay.PollInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.NewPool(initCtx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	noteRepo := db.NewNoteRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)
	store := delay.NewPostgresStore(pool)

	provider, metrics, err := buildEmailStack(ctx, cfg, logger)
	if err != nil {
		return err
	}

	dispatcher := reminders.NewDispatcher(noteRepo, provider, types.EmailAddress{
		Name:    cfg.Email.FromName,
		Address: cfg.Email.FromAddress,
	}, metrics, logger)

	runner := delay.NewRunner(store, dispatcher, delay.RunnerConfig{
		PollInterval:      cfg.Delay.PollInterval,
		BatchSize:         cfg.Delay.BatchSize,
		Concurrency:       cfg.Delay.Concurrency,
		VisibilityTimeout: cfg.Delay.VisibilityTimeout,
	}, logger)

	archiver := delay.NewArchiver(store, cfg.Archive.Dir, cfg.Archive.EntryRetention, logger)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gCtx)
	})
	g.Go(func() error {
		return runMaintenance(gCtx, cfg, store, noteRepo, sessionRepo, archiver, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("reminder worker stopped cleanly")
	return nil
}

// buildEmailStack assembles the outbound email provider and the dispatch
// metrics sink. SES and CloudWatch are only wired when the SES provider is
// selected; the stub provider pairs with no-op metrics for local runs.
func buildEmailStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (external.EmailProvider, reminders.Metrics, error) {
	if cfg.Email.Provider == "stub" {
		return external.NewStubEmailProvider(logger), reminders.NopMetrics{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.AWS.EndpointURL != "" {
		// LocalStack support.
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	ses := external.NewSESClient(awsCfg, cfg.Email.SESConfigSet)
	provider := external.NewBreakerEmailProvider(ses, logger)

	metrics := reminders.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)
	return provider, metrics, nil
}

// runMaintenance runs the periodic housekeeping pass until the context is
// cancelled. Each concern is isolated: a failure in one is logged and the
// others still run.
func runMaintenance(
	ctx context.Context,
	cfg *config.Config,
	store *delay.PostgresStore,
	noteRepo *db.NoteRepository,
	sessionRepo *db.SessionRepository,
	archiver *delay.Archiver,
	logger *slog.Logger,
) error {
	ticker := time.NewTicker(cfg.Archive.Interval)
	defer ticker.Stop()

	logger.Info("maintenance loop started", "interval", cfg.Archive.Interval.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance loop stopped")
			return nil
		case <-ticker.C:
			now := time.Now().UTC()

			if _, err := archiver.Run(ctx, now); err != nil {
				logger.Error("archive pass failed", "error", err.Error())
			}

			if pruned, err := sessionRepo.DeleteExpired(ctx, now); err != nil {
				logger.Error("session prune failed", "error", err.Error())
			} else if pruned > 0 {
				logger.Info("pruned expired sessions", "count", pruned)
			}

			purgeExpiredTrash(ctx, cfg, store, noteRepo, now, logger)
		}
	}
}

// purgeExpiredTrash permanently deletes trashed notes past the retention
// window. Live reminder schedules are cancelled first so no entry can fire
// for a purged note; a note whose cancel fails is skipped and retried on the
// next pass.
func purgeExpiredTrash(
	ctx context.Context,
	cfg *config.Config,
	store *delay.PostgresStore,
	noteRepo *db.NoteRepository,
	now time.Time,
	logger *slog.Logger,
) {
	cutoff := now.Add(-cfg.Archive.TrashRetention)
	notes, err := noteRepo.ListTrashedBefore(ctx, cutoff, trashPurgeBatchSize)
	if err != nil {
		logger.Error("failed to list expired trash", "error", err.Error())
		return
	}
	if len(notes) == 0 {
		return
	}

	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		if n.Reminder.Live() {
			if err := store.Cancel(ctx, n.Reminder.ScheduleID); err != nil {
				logger.Error("failed to cancel schedule for purged note",
					"note_id", n.ID,
					"schedule_id", n.Reminder.ScheduleID,
					"error", err.Error(),
				)
				continue
			}
		}
		ids = append(ids, n.ID)
	}
	if len(ids) == 0 {
		return
	}

	deleted, err := noteRepo.HardDeleteByIDs(ctx, ids)
	if err != nil {
		logger.Error("failed to purge expired trash", "error", err.Error())
		return
	}
	logger.Info("purged expired trash", "count", deleted)
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
