// Package runner executes due tasks and reschedules them.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/periodic/internal/db"
)

// Catalog is the part of the catalog store the runner reads and writes.
type Catalog interface {
	FetchDueTasks(ctx context.Context, now time.Time) ([]db.ScheduledTask, error)
	RecordRunLog(ctx context.Context, run *db.RunLog) error
	UpdateAfterRun(ctx context.Context, taskID int64, finishedAt, nextRunAt time.Time) error
}

// Executor invokes a target by identity.
type Executor interface {
	Invoke(ctx context.Context, sourceLocation, identifier string) error
}

// Runner polls the catalog for due tasks and runs them one at a time
type Runner struct {
	catalog  Catalog
	executor Executor
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a runner using the wall clock
func New(catalog Catalog, executor Executor, logger *slog.Logger) *Runner {
	return &Runner{
		catalog:  catalog,
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for run timestamps and loop polling
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// ComputeNextRun returns the next due time. An overdue task is rescheduled one
// interval from now and missed runs are not backfilled; a task that is not
// yet due keeps its cadence.
func ComputeNextRun(now, previous time.Time, interval time.Duration) time.Time {
	base := previous
	if previous.Before(now) {
		base = now
	}
	return base.Add(interval)
}

// RunDueOnce runs every task due at now, in due order, and returns how many
// were executed. Target failures are recorded as failed runs. A store error
// stops the cycle and is returned with the count so far.
func (r *Runner) RunDueOnce(ctx context.Context, now time.Time) (int, error) {
	tasks, err := r.catalog.FetchDueTasks(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("runner: fetch due tasks: %w", err)
	}

	executed := 0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		if err := r.runTask(ctx, now, task); err != nil {
			return executed, err
		}
		executed++
	}

	return executed, nil
}

func (r *Runner) runTask(ctx context.Context, now time.Time, task db.ScheduledTask) error {
	run := &db.RunLog{
		RunID:     uuid.NewString(),
		TaskID:    task.ID,
		StartedAt: r.now(),
		Status:    db.StatusSuccess,
	}

	invokeErr := r.executor.Invoke(ctx, task.SourceLocation, task.Identifier)
	run.FinishedAt = r.now()

	if invokeErr != nil {
		message := invokeErr.Error()
		run.Status = db.StatusFailure
		run.ErrorMessage = &message
		r.logger.Warn("task failed",
			"task", task.Identifier,
			"run_id", run.RunID,
			"duration", run.FinishedAt.Sub(run.StartedAt),
			"error", invokeErr)
	} else {
		r.logger.Info("task succeeded",
			"task", task.Identifier,
			"run_id", run.RunID,
			"duration", run.FinishedAt.Sub(run.StartedAt))
	}

	if err := r.catalog.RecordRunLog(ctx, run); err != nil {
		return fmt.Errorf("runner: record run %s: %w", task.Identifier, err)
	}

	next := ComputeNextRun(now, task.NextRunAt, task.Interval())
	if err := r.catalog.UpdateAfterRun(ctx, task.ID, run.FinishedAt, next); err != nil {
		return fmt.Errorf("runner: reschedule %s: %w", task.Identifier, err)
	}

	r.logger.Debug("task rescheduled", "task", task.Identifier, "next_run_at", next)
	return nil
}

// Loop runs due tasks, then sleeps poll, until ctx is done. The sleep starts
// after a cycle finishes. A failed cycle is logged and the next cycle retries.
func (r *Runner) Loop(ctx context.Context, poll time.Duration) error {
	timer := time.NewTimer(poll)
	defer timer.Stop()

	for {
		executed, err := r.RunDueOnce(ctx, r.now())
		switch {
		case err != nil && ctx.Err() == nil:
			r.logger.Error("runner cycle failed", "executed", executed, "error", err)
		case executed > 0:
			r.logger.Info("runner cycle finished", "executed", executed)
		}

		timer.Reset(poll)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
