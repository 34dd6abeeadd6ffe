package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const taskColumns = `id, source_location, identifier, interval_seconds, last_discovered_at,
	enabled, last_run_at, next_run_at`

// =============================================================================
// Scheduled Task Operations
// =============================================================================

// RegisterOrUpdateTask upserts a task by (sourceLocation, identifier) and returns its ID.
// Both a fresh insert and a re-discovery schedule the next run one interval from now.
func (db *DB) RegisterOrUpdateTask(ctx context.Context, sourceLocation, identifier string, intervalSeconds int64) (int64, error) {
	if intervalSeconds <= 0 {
		return 0, fmt.Errorf("%w: %s got %d", ErrInvalidInterval, identifier, intervalSeconds)
	}

	now := db.now().Unix()
	nextRunAt := now + intervalSeconds

	query := `
		INSERT INTO scheduled_tasks
			(source_location, identifier, interval_seconds, last_discovered_at, enabled, last_run_at, next_run_at)
		VALUES (?, ?, ?, ?, 1, NULL, ?)
		ON CONFLICT (source_location, identifier) DO UPDATE SET
			interval_seconds = excluded.interval_seconds,
			last_discovered_at = excluded.last_discovered_at,
			next_run_at = excluded.next_run_at
		RETURNING id
	`

	var id int64
	err := db.QueryRowContext(ctx, query, sourceLocation, identifier, intervalSeconds, now, nextRunAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db: register task %s: %w", identifier, err)
	}

	return id, nil
}

// GetTask retrieves a task by ID
func (db *DB) GetTask(ctx context.Context, id int64) (*ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks WHERE id = ?`

	task, err := scanTask(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get task %d: %w", id, err)
	}

	return task, nil
}

// FetchDueTasks returns enabled tasks whose next run is at or before now, earliest first.
func (db *DB) FetchDueTasks(ctx context.Context, now time.Time) ([]ScheduledTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM scheduled_tasks
		WHERE enabled = 1 AND next_run_at <= ?
		ORDER BY next_run_at ASC, identifier ASC, source_location ASC
	`

	tasks, err := db.queryTasks(ctx, query, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("db: fetch due tasks: %w", err)
	}
	return tasks, nil
}

// ListTasks returns all tasks ordered by identifier
func (db *DB) ListTasks(ctx context.Context) ([]ScheduledTask, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM scheduled_tasks
		ORDER BY identifier ASC, source_location ASC
	`

	tasks, err := db.queryTasks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db: list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateAfterRun records the completion of a run and the next due time
func (db *DB) UpdateAfterRun(ctx context.Context, taskID int64, finishedAt, nextRunAt time.Time) error {
	query := `
		UPDATE scheduled_tasks
		SET last_run_at = ?, next_run_at = ?
		WHERE id = ?
	`

	result, err := db.ExecContext(ctx, query, finishedAt.Unix(), nextRunAt.Unix(), taskID)
	if err != nil {
		return fmt.Errorf("db: update task %d after run: %w", taskID, err)
	}

	return requireRow(result)
}

// SetTaskEnabled enables or disables a task. Disabled tasks are never due.
func (db *DB) SetTaskEnabled(ctx context.Context, taskID int64, enabled bool) error {
	result, err := db.ExecContext(ctx, `UPDATE scheduled_tasks SET enabled = ? WHERE id = ?`, enabled, taskID)
	if err != nil {
		return fmt.Errorf("db: set task %d enabled: %w", taskID, err)
	}

	return requireRow(result)
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]ScheduledTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []ScheduledTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*ScheduledTask, error) {
	var (
		task             ScheduledTask
		lastDiscoveredAt int64
		lastRunAt        sql.NullInt64
		nextRunAt        int64
	)

	err := row.Scan(
		&task.ID,
		&task.SourceLocation,
		&task.Identifier,
		&task.IntervalSeconds,
		&lastDiscoveredAt,
		&task.Enabled,
		&lastRunAt,
		&nextRunAt,
	)
	if err != nil {
		return nil, err
	}

	task.LastDiscoveredAt = time.Unix(lastDiscoveredAt, 0)
	task.LastRunAt = timePtr(lastRunAt)
	task.NextRunAt = time.Unix(nextRunAt, 0)
	return &task, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
