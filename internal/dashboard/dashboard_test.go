package dashboard

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/periodic/internal/db"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

var base = time.Unix(1_700_000_000, 0)

func seededCatalog(t *testing.T) *db.DB {
	t.Helper()

	catalog, err := db.Open(context.Background(), db.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	catalog.SetClock(func() time.Time { return base })

	ctx := context.Background()
	id, err := catalog.RegisterOrUpdateTask(ctx, "/src/sample_tasks.task.toml", "sample_tasks.hello_task", 30)
	require.NoError(t, err)

	message := "exit status 1"
	require.NoError(t, catalog.RecordRunLog(ctx, &db.RunLog{
		RunID: "run-1", TaskID: id, StartedAt: base, FinishedAt: base, Status: db.StatusSuccess,
	}))
	require.NoError(t, catalog.RecordRunLog(ctx, &db.RunLog{
		RunID: "run-2", TaskID: id, StartedAt: base.Add(time.Second), FinishedAt: base.Add(time.Second),
		Status: db.StatusFailure, ErrorMessage: &message,
	}))
	require.NoError(t, catalog.RecordScanError(ctx, "/src/broken.task.toml", "decode_error", "expected '='"))
	return catalog
}

func TestFormatSummary(t *testing.T) {
	last := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		summary db.Summary
		want    string
	}{
		{
			name:    "never scanned",
			summary: db.Summary{},
			want:    "Last scan: n/a | Tasks: 0 | Runs (24h): 0 | Failures (24h): 0",
		},
		{
			name:    "populated",
			summary: db.Summary{LastScan: &last, TotalTasks: 3, RunsInWindow: 12, FailuresInWindow: 2},
			want:    "Last scan: 2024-01-02 03:04:05 UTC | Tasks: 3 | Runs (24h): 12 | Failures (24h): 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSummary(tt.summary))
		})
	}
}

func TestRender_Populated(t *testing.T) {
	catalog := seededCatalog(t)

	snap, err := Collect(context.Background(), catalog, base.Add(time.Minute))
	require.NoError(t, err)

	var buf bytes.Buffer
	Render(&buf, snap)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Last scan: 2023-11-14 22:13:20 UTC | Tasks: 1 | Runs (24h): 2 | Failures (24h): 1"), out)
	assert.Contains(t, out, "Scheduled Tasks")
	assert.Contains(t, out, "sample_tasks.hello_task")
	assert.Contains(t, out, "30s")
	assert.Contains(t, out, "Recent Runs")
	assert.Contains(t, out, "failure")
	assert.Contains(t, out, "Recent Scan Errors")
	assert.Contains(t, out, "decode_error")
	assert.NotContains(t, out, "No runs yet")
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, &Snapshot{})
	out := buf.String()

	assert.Contains(t, out, "Last scan: n/a")
	assert.Contains(t, out, "No scheduled tasks discovered yet")
	assert.Contains(t, out, "No runs yet")
	assert.Contains(t, out, "No scan errors")
}

type brokenSource struct{ *db.DB }

func (brokenSource) Summary(context.Context, time.Time) (*db.Summary, error) {
	return nil, errors.New("database is locked")
}

func TestRun_QueryErrorIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	err := run(ctx, brokenSource{}, 10*time.Millisecond, &buf, func() time.Time { return base })
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "dashboard: summary: database is locked")
	assert.GreaterOrEqual(t, strings.Count(buf.String(), clearScreen), 2, "expected repeated redraws")
}

func TestRun_RendersFrames(t *testing.T) {
	catalog := seededCatalog(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	require.NoError(t, run(ctx, catalog, 10*time.Millisecond, &buf, func() time.Time { return base }))
	assert.Contains(t, buf.String(), "sample_tasks.hello_task")
}

func TestRunHistoryTable(t *testing.T) {
	message := "timeout"
	runs := []db.RunLog{
		{RunID: "run-2", StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + 2*time.Second), Status: db.StatusFailure, ErrorMessage: &message},
		{RunID: "run-1", StartedAt: base, FinishedAt: base, Status: db.StatusSuccess},
	}

	var buf bytes.Buffer
	RunHistoryTable(&buf, "jobs.Tick", runs)
	out := buf.String()

	assert.Contains(t, out, "Runs of jobs.Tick")
	assert.Less(t, strings.Index(out, "run-2"), strings.Index(out, "run-1"), "rows keep the given order")
	assert.Contains(t, out, "2s")
	assert.Contains(t, out, "timeout")

	buf.Reset()
	RunHistoryTable(&buf, "jobs.Tick", nil)
	assert.Contains(t, buf.String(), "No runs yet")
}
