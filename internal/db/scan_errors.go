package db

import (
	"context"
	"fmt"
	"time"
)

// RecordScanError appends a discovery failure for a source location
func (db *DB) RecordScanError(ctx context.Context, sourceLocation, category, message string) error {
	query := `
		INSERT INTO scan_errors (source_location, category, message, occurred_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query, sourceLocation, category, message, db.now().Unix())
	if err != nil {
		return fmt.Errorf("db: record scan error for %s: %w", sourceLocation, err)
	}

	return nil
}

// RecentScanErrors retrieves the most recent scan errors, newest first
func (db *DB) RecentScanErrors(ctx context.Context, limit int) ([]ScanError, error) {
	query := `
		SELECT id, source_location, category, message, occurred_at
		FROM scan_errors
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db: recent scan errors: %w", err)
	}
	defer rows.Close()

	scanErrors := []ScanError{}
	for rows.Next() {
		var (
			se         ScanError
			occurredAt int64
		)
		if err := rows.Scan(&se.ID, &se.SourceLocation, &se.Category, &se.Message, &occurredAt); err != nil {
			return nil, err
		}
		se.OccurredAt = time.Unix(occurredAt, 0)
		scanErrors = append(scanErrors, se)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return scanErrors, nil
}
