package worker

import (
	"context"
	"fmt"
	"io"
	"time"

	"cashflow/internal/amqp"
	"cashflow/internal/core"
	"cashflow/internal/log"
	"cashflow/internal/projection"
	"cashflow/internal/storage"
)

// Projector runs and caches projections.
type Projector interface {
	Project(ctx context.Context, accountID string, window core.Window, now time.Time) (*projection.Result, error)
	ProjectAll(ctx context.Context, window core.Window, now time.Time) ([]*projection.Result, error)
	Invalidate(accountID string) int
}

// Scheduler refreshes the cron schedules of an account.
type Scheduler interface {
	RefreshSchedules(ctx context.Context, accountID string) ([]storage.Schedule, error)
}

// MaterializeWorker rebuilds projections when asked over AMQP and on a timer.
// Every run projects from the current instant, truncated to resolution, up to
// that instant plus horizon. Runs inside the same resolution slot share a
// projection instant and so hit the projector's result cache.
type MaterializeWorker struct {
	projector  Projector
	scheduler  Scheduler
	horizon    time.Duration
	resolution time.Duration
	now        func() time.Time
	logger     *log.Logger
}

func NewMaterializeWorker(projector Projector, scheduler Scheduler, horizon, resolution time.Duration, logger *log.Logger) *MaterializeWorker {
	if logger == nil {
		cfg := log.DefaultConfig()
		cfg.Output = io.Discard
		logger = log.New(cfg)
	}
	return &MaterializeWorker{
		projector:  projector,
		scheduler:  scheduler,
		horizon:    horizon,
		resolution: resolution,
		now:        time.Now,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

func (w *MaterializeWorker) snapshot() time.Time {
	now := w.now()
	if w.resolution > 0 {
		now = now.Truncate(w.resolution)
	}
	return now
}

func (w *MaterializeWorker) window(now time.Time) core.Window {
	return core.Window{From: now, To: now.Add(w.horizon)}
}

// HandleMessage processes a single materialize message from AMQP. Cached
// projections of the account are dropped first unless the message is a plain
// scheduled refresh, which leaves the records untouched.
func (w *MaterializeWorker) HandleMessage(ctx context.Context, msg *amqp.MaterializeMessage) error {
	w.logger.InfoContext(ctx, "Processing materialize message",
		log.FieldAccountID, msg.AccountID,
		log.FieldItemID, msg.ItemID,
		log.FieldReason, msg.Reason)

	if msg.Reason != amqp.ReasonSchedule {
		w.projector.Invalidate(msg.AccountID)
	}

	now := w.snapshot()
	res, err := w.projector.Project(ctx, msg.AccountID, w.window(now), now)
	if err != nil {
		return fmt.Errorf("project account: %w", err)
	}

	if _, err := w.scheduler.RefreshSchedules(ctx, msg.AccountID); err != nil {
		return fmt.Errorf("refresh schedules: %w", err)
	}

	w.logger.InfoContext(ctx, "Materialized account",
		log.FieldAccountID, msg.AccountID,
		log.FieldIncluded, len(res.Included),
		log.FieldSkipped, len(res.Skipped))
	return nil
}

// ProcessAll projects every account once. This is the backup path for
// messages that never arrived.
func (w *MaterializeWorker) ProcessAll(ctx context.Context) (int, error) {
	now := w.snapshot()
	results, err := w.projector.ProjectAll(ctx, w.window(now), now)
	if err != nil {
		return 0, fmt.Errorf("project all accounts: %w", err)
	}
	for _, res := range results {
		if _, err := w.scheduler.RefreshSchedules(ctx, res.AccountID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to refresh schedules",
				log.FieldAccountID, res.AccountID,
				log.FieldError, err)
		}
	}
	return len(results), nil
}

// RunPeriodic calls ProcessAll immediately and then every interval until ctx
// is done. Failed passes are logged and retried on the next tick.
func (w *MaterializeWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	w.processAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processAndLog(ctx)
		}
	}
}

func (w *MaterializeWorker) processAndLog(ctx context.Context) {
	count, err := w.ProcessAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Periodic materialization failed", log.FieldError, err)
		}
		return
	}
	w.logger.InfoContext(ctx, "Periodic materialization complete", "accounts", count)
}
