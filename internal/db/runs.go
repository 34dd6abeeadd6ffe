package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordRunLog appends a run log. A run referencing a task that no longer
// exists is logged and dropped rather than failing the caller.
func (db *DB) RecordRunLog(ctx context.Context, run *RunLog) error {
	query := `
		INSERT INTO run_logs (run_id, task_id, started_at, finished_at, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		run.RunID,
		run.TaskID,
		run.StartedAt.Unix(),
		run.FinishedAt.Unix(),
		run.Status,
		run.ErrorMessage,
	)
	if IsForeignKey(err) {
		db.logger.Warn("dropping run log for unknown task", "task_id", run.TaskID, "run_id", run.RunID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("db: record run log for task %d: %w", run.TaskID, err)
	}

	return nil
}

// GetRunLogs retrieves the most recent runs of a task, newest first
func (db *DB) GetRunLogs(ctx context.Context, taskID int64, limit int) ([]RunLog, error) {
	query := `
		SELECT id, run_id, task_id, started_at, finished_at, status, error_message
		FROM run_logs
		WHERE task_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: get run logs for task %d: %w", taskID, err)
	}
	defer rows.Close()

	runs := []RunLog{}
	for rows.Next() {
		var run RunLog
		if err := scanRun(rows, &run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// RecentRuns retrieves the most recent runs across all tasks, newest first
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]RunView, error) {
	query := `
		SELECT r.id, r.run_id, r.task_id, r.started_at, r.finished_at, r.status, r.error_message, t.identifier
		FROM run_logs r
		JOIN scheduled_tasks t ON r.task_id = t.id
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db: recent runs: %w", err)
	}
	defer rows.Close()

	views := []RunView{}
	for rows.Next() {
		var view RunView
		if err := scanRun(rows, &view.RunLog, &view.Identifier); err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return views, nil
}

func scanRun(row rowScanner, run *RunLog, extra ...any) error {
	var (
		startedAt    int64
		finishedAt   int64
		errorMessage sql.NullString
	)

	dest := append([]any{
		&run.ID,
		&run.RunID,
		&run.TaskID,
		&startedAt,
		&finishedAt,
		&run.Status,
		&errorMessage,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	run.StartedAt = time.Unix(startedAt, 0)
	run.FinishedAt = time.Unix(finishedAt, 0)
	if errorMessage.Valid {
		msg := errorMessage.String
		run.ErrorMessage = &msg
	}
	return nil
}
