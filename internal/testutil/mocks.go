package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/livinlefevreloca/periodic/internal/db"
)

// ErrMockWrite is a convenient injected store failure
var ErrMockWrite = errors.New("mock: write failed")

// MockCatalog is an in-memory catalog with injectable failures
type MockCatalog struct {
	mu         sync.Mutex
	tasks      []*db.ScheduledTask
	runs       []db.RunLog
	scanErrors []db.ScanError
	nextID     int64

	now            func() time.Time
	registerError  error
	scanErrorError error
	fetchError     error
	runLogError    error
	updateError    error
}

// NewMockCatalog creates an empty mock catalog using clock for discovery timestamps
func NewMockCatalog(clock func() time.Time) *MockCatalog {
	return &MockCatalog{now: clock}
}

func (m *MockCatalog) SetRegisterError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerError = err
}

func (m *MockCatalog) SetScanErrorError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErrorError = err
}

func (m *MockCatalog) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchError = err
}

func (m *MockCatalog) SetRunLogError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runLogError = err
}

func (m *MockCatalog) SetUpdateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateError = err
}

// AddTask inserts a task directly and returns its ID
func (m *MockCatalog) AddTask(task db.ScheduledTask) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	task.ID = m.nextID
	m.tasks = append(m.tasks, &task)
	return task.ID
}

func (m *MockCatalog) RegisterOrUpdateTask(_ context.Context, sourceLocation, identifier string, intervalSeconds int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registerError != nil {
		return 0, m.registerError
	}

	now := m.now()
	next := now.Add(time.Duration(intervalSeconds) * time.Second)
	for _, task := range m.tasks {
		if task.SourceLocation == sourceLocation && task.Identifier == identifier {
			task.IntervalSeconds = intervalSeconds
			task.LastDiscoveredAt = now
			task.NextRunAt = next
			return task.ID, nil
		}
	}

	m.nextID++
	m.tasks = append(m.tasks, &db.ScheduledTask{
		ID:               m.nextID,
		SourceLocation:   sourceLocation,
		Identifier:       identifier,
		IntervalSeconds:  intervalSeconds,
		LastDiscoveredAt: now,
		Enabled:          true,
		NextRunAt:        next,
	})
	return m.nextID, nil
}

func (m *MockCatalog) RecordScanError(_ context.Context, sourceLocation, category, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scanErrorError != nil {
		return m.scanErrorError
	}

	m.scanErrors = append(m.scanErrors, db.ScanError{
		ID:             int64(len(m.scanErrors) + 1),
		SourceLocation: sourceLocation,
		Category:       category,
		Message:        message,
		OccurredAt:     m.now(),
	})
	return nil
}

func (m *MockCatalog) FetchDueTasks(_ context.Context, now time.Time) ([]db.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fetchError != nil {
		return nil, m.fetchError
	}

	due := []db.ScheduledTask{}
	for _, task := range m.tasks {
		if task.Enabled && !task.NextRunAt.After(now) {
			due = append(due, *task)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].NextRunAt.Equal(due[j].NextRunAt) {
			return due[i].NextRunAt.Before(due[j].NextRunAt)
		}
		return due[i].Identifier < due[j].Identifier
	})
	return due, nil
}

func (m *MockCatalog) RecordRunLog(_ context.Context, run *db.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runLogError != nil {
		return m.runLogError
	}

	m.runs = append(m.runs, *run)
	return nil
}

func (m *MockCatalog) UpdateAfterRun(_ context.Context, taskID int64, finishedAt, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateError != nil {
		return m.updateError
	}

	for _, task := range m.tasks {
		if task.ID == taskID {
			finished := finishedAt
			task.LastRunAt = &finished
			task.NextRunAt = nextRunAt
			return nil
		}
	}
	return db.ErrNotFound
}

// Tasks returns a snapshot of all tasks
func (m *MockCatalog) Tasks() []db.ScheduledTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]db.ScheduledTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, *task)
	}
	return out
}

// Runs returns a snapshot of recorded run logs
func (m *MockCatalog) Runs() []db.RunLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]db.RunLog(nil), m.runs...)
}

// ScanErrors returns a snapshot of recorded scan errors
func (m *MockCatalog) ScanErrors() []db.ScanError {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]db.ScanError(nil), m.scanErrors...)
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
