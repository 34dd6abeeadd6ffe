// Package dashboard renders a read-only terminal view of the catalog.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/livinlefevreloca/periodic/internal/db"
)

// Window is the trailing period the summary counts runs over
const Window = 24 * time.Hour

const (
	recentRunLimit   = 10
	recentErrorLimit = 5
	timeLayout       = "2006-01-02 15:04:05 UTC"
	clearScreen      = "\033[H\033[2J"
)

// Source is the read side of the catalog the dashboard queries
type Source interface {
	Summary(ctx context.Context, since time.Time) (*db.Summary, error)
	ListTasks(ctx context.Context) ([]db.ScheduledTask, error)
	RecentRuns(ctx context.Context, limit int) ([]db.RunView, error)
	RecentScanErrors(ctx context.Context, limit int) ([]db.ScanError, error)
}

// Snapshot is everything one frame shows
type Snapshot struct {
	Summary    db.Summary
	Tasks      []db.ScheduledTask
	Runs       []db.RunView
	ScanErrors []db.ScanError
}

// Collect queries source for a frame as of now
func Collect(ctx context.Context, source Source, now time.Time) (*Snapshot, error) {
	summary, err := source.Summary(ctx, now.Add(-Window))
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	tasks, err := source.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}
	runs, err := source.RecentRuns(ctx, recentRunLimit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	scanErrors, err := source.RecentScanErrors(ctx, recentErrorLimit)
	if err != nil {
		return nil, fmt.Errorf("scan errors: %w", err)
	}

	return &Snapshot{
		Summary:    *summary,
		Tasks:      tasks,
		Runs:       runs,
		ScanErrors: scanErrors,
	}, nil
}

// FormatSummary renders the one-line status header
func FormatSummary(s db.Summary) string {
	lastScan := "n/a"
	if s.LastScan != nil {
		lastScan = FormatTime(*s.LastScan)
	}
	return fmt.Sprintf("Last scan: %s | Tasks: %d | Runs (24h): %d | Failures (24h): %d",
		lastScan, s.TotalTasks, s.RunsInWindow, s.FailuresInWindow)
}

// FormatTime renders t in UTC
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return "n/a"
	}
	return FormatTime(*t)
}

// Render writes one frame to w
func Render(w io.Writer, snap *Snapshot) {
	fmt.Fprintln(w, FormatSummary(snap.Summary))
	fmt.Fprintln(w)

	TaskTable(w, snap.Tasks)
	fmt.Fprintln(w)

	runs := newTable(w, "Recent Runs", table.Row{"When", "Status", "Task"})
	for _, run := range snap.Runs {
		runs.AppendRow(table.Row{FormatTime(run.StartedAt), Status(run.Status), run.Identifier})
	}
	if len(snap.Runs) == 0 {
		runs.AppendRow(table.Row{"n/a", "n/a", "No runs yet"})
	}
	runs.Render()
	fmt.Fprintln(w)

	errs := newTable(w, "Recent Scan Errors", table.Row{"When", "Category", "Location", "Message"})
	for _, e := range snap.ScanErrors {
		errs.AppendRow(table.Row{FormatTime(e.OccurredAt), e.Category, e.SourceLocation, e.Message})
	}
	if len(snap.ScanErrors) == 0 {
		errs.AppendRow(table.Row{"n/a", "", "", "No scan errors"})
	}
	errs.Render()
}

// TaskTable writes the scheduled task table to w
func TaskTable(w io.Writer, tasks []db.ScheduledTask) {
	t := newTable(w, "Scheduled Tasks", table.Row{"ID", "Task", "Interval", "Next Run", "Last Run", "Enabled"})
	for _, task := range tasks {
		t.AppendRow(table.Row{
			task.ID,
			task.Identifier,
			task.Interval().String(),
			FormatTime(task.NextRunAt),
			formatOptional(task.LastRunAt),
			enabled(task.Enabled),
		})
	}
	if len(tasks) == 0 {
		t.AppendRow(table.Row{"", "No scheduled tasks discovered yet", "", "", "", ""})
	}
	t.Render()
}

// RunHistoryTable writes the runs of one task to w, newest first
func RunHistoryTable(w io.Writer, identifier string, runs []db.RunLog) {
	t := newTable(w, "Runs of "+identifier, table.Row{"Run", "Started", "Duration", "Status", "Error"})
	for _, run := range runs {
		message := ""
		if run.ErrorMessage != nil {
			message = *run.ErrorMessage
		}
		t.AppendRow(table.Row{
			run.RunID,
			FormatTime(run.StartedAt),
			run.FinishedAt.Sub(run.StartedAt).String(),
			Status(run.Status),
			message,
		})
	}
	if len(runs) == 0 {
		t.AppendRow(table.Row{"", "n/a", "", "", "No runs yet"})
	}
	t.Render()
}

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

// Status colors a run status for terminal output
func Status(status string) string {
	switch status {
	case db.StatusSuccess:
		return color.New(color.FgHiGreen).Sprint(status)
	case db.StatusFailure:
		return color.New(color.FgRed).Sprint(status)
	default:
		return status
	}
}

func enabled(on bool) string {
	if on {
		return color.New(color.FgHiGreen).Sprint("yes")
	}
	return color.New(color.FgHiBlack).Sprint("no")
}

// Run redraws the dashboard every refresh until ctx is done. Query failures
// are shown in place of the frame and retried on the next refresh.
func Run(ctx context.Context, source Source, refresh time.Duration, w io.Writer) error {
	return run(ctx, source, refresh, w, time.Now)
}

func run(ctx context.Context, source Source, refresh time.Duration, w io.Writer, now func() time.Time) error {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		fmt.Fprint(w, clearScreen)
		snap, err := Collect(ctx, source, now())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(w, color.New(color.FgRed).Sprintf("dashboard: %v", err))
		} else {
			Render(w, snap)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
