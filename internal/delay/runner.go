package delay

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Claimer is the consumer-side contract of the durable store, implemented by
// PostgresStore. The Runner drives it; handlers never see it.
type Claimer interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	Complete(ctx context.Context, id string) error
	ScheduleRetry(ctx context.Context, id string, at time.Time, reason string) error
	MarkExhausted(ctx context.Context, id string, reason string) error
	RequeueStuck(ctx context.Context, cutoff time.Time) (int, error)
}

// RunnerConfig tunes the polling consumer.
type RunnerConfig struct {
	PollInterval      time.Duration
	BatchSize         int
	Concurrency       int
	VisibilityTimeout time.Duration
}

// Runner is the polling consumer that turns durable delay entries into
// handler invocations. It claims due entries in batches, dispatches them
// with bounded concurrency, and applies each entry's attempt policy to the
// outcome. One handler invocation per claim; redelivery only happens through
// the visibility-timeout reclaim after a crash, which is what makes the
// overall contract at-least-once.
type Runner struct {
	store   Claimer
	handler Handler
	cfg     RunnerConfig
	logger  *slog.Logger
	nowFn   func() time.Time
}

// NewRunner creates a Runner. Zero config fields fall back to safe defaults.
func NewRunner(store Claimer, handler Handler, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:   store,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until the context is cancelled. In-flight dispatches finish
// before Run returns, giving the worker explicit drain semantics.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("delay runner started",
		"poll_interval", r.cfg.PollInterval.String(),
		"batch_size", r.cfg.BatchSize,
		"concurrency", r.cfg.Concurrency,
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("delay runner stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick performs one poll cycle: reclaim stranded entries, claim a batch of
// due ones, dispatch them concurrently.
func (r *Runner) tick(ctx context.Context) {
	now := r.nowFn()

	requeued, err := r.store.RequeueStuck(ctx, now.Add(-r.cfg.VisibilityTimeout))
	if err != nil {
		r.logger.Error("failed to requeue stuck entries", "error", err.Error())
	} else if requeued > 0 {
		r.logger.Warn("requeued entries stuck in delivering", "count", requeued)
	}

	entries, err := r.store.ClaimDue(ctx, now, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("failed to claim due entries", "error", err.Error())
		return
	}
	if len(entries) == 0 {
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, e := range entries {
		g.Go(func() error {
			r.dispatch(gCtx, e)
			// Dispatch outcomes are settled per entry; never fail the group.
			return nil
		})
	}
	_ = g.Wait()
}

// dispatch invokes the handler for one claimed entry and settles the
// outcome: consume on success, retry or exhaust on failure.
func (r *Runner) dispatch(ctx context.Context, e Entry) {
	logger := r.logger.With(
		"entry_id", e.ID,
		"attempt", e.Attempt,
		"max_attempts", e.MaxAttempts,
	)

	err := r.handler.Handle(ctx, e)
	if err == nil {
		if cErr := r.store.Complete(ctx, e.ID); cErr != nil {
			// The entry stays in delivering and will be reclaimed after the
			// visibility timeout; the handler must tolerate the redelivery.
			logger.Error("failed to complete entry after successful dispatch", "error", cErr.Error())
			return
		}
		logger.Info("entry dispatched")
		return
	}

	if IsTerminal(err) || e.Attempt >= e.MaxAttempts {
		if mErr := r.store.MarkExhausted(ctx, e.ID, err.Error()); mErr != nil {
			logger.Error("failed to mark entry exhausted", "error", mErr.Error())
			return
		}
		logger.Error("entry exhausted", "error", err.Error(), "terminal", IsTerminal(err))
		return
	}

	retryAt := r.nowFn().Add(e.Backoff)
	if sErr := r.store.ScheduleRetry(ctx, e.ID, retryAt, err.Error()); sErr != nil {
		logger.Error("failed to schedule retry", "error", sErr.Error())
		return
	}
	logger.Warn("entry dispatch failed, retry scheduled",
		"error", err.Error(),
		"retry_at", retryAt.Format(time.RFC3339),
	)
}
