package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Summary aggregates catalog state, counting runs that started at or after since.
func (db *DB) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	summary := &Summary{Since: since}

	var lastScan sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT MAX(last_discovered_at), COUNT(*), COALESCE(SUM(enabled), 0)
		FROM scheduled_tasks
	`).Scan(&lastScan, &summary.TotalTasks, &summary.EnabledTasks)
	if err != nil {
		return nil, fmt.Errorf("db: summarize tasks: %w", err)
	}
	summary.LastScan = timePtr(lastScan)

	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM run_logs
		WHERE started_at >= ?
	`, StatusFailure, since.Unix()).Scan(&summary.RunsInWindow, &summary.FailuresInWindow)
	if err != nil {
		return nil, fmt.Errorf("db: summarize runs: %w", err)
	}

	return summary, nil
}
