package db

import "time"

// Run statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ScheduledTask represents a discovered recurring target
type ScheduledTask struct {
	ID               int64
	SourceLocation   string
	Identifier       string
	IntervalSeconds  int64
	LastDiscoveredAt time.Time
	Enabled          bool
	LastRunAt        *time.Time
	NextRunAt        time.Time
}

// Interval returns the task period as a duration.
func (t ScheduledTask) Interval() time.Duration {
	return time.Duration(t.IntervalSeconds) * time.Second
}

// RunLog represents a single execution attempt of a task
type RunLog struct {
	ID           int64
	RunID        string
	TaskID       int64
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       string
	ErrorMessage *string
}

// RunView is a run log joined with the identifier of its task
type RunView struct {
	RunLog
	Identifier string
}

// ScanError represents a discovery failure for a source location
type ScanError struct {
	ID             int64
	SourceLocation string
	Category       string
	Message        string
	OccurredAt     time.Time
}

// Summary aggregates catalog state over a trailing window
type Summary struct {
	LastScan         *time.Time
	TotalTasks       int
	EnabledTasks     int
	RunsInWindow     int
	FailuresInWindow int
	Since            time.Time
}
