package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one rescan.
const DefaultDebounce = 500 * time.Millisecond

// LoopConfig controls the repeated scan cycle.
type LoopConfig struct {
	Roots    []string
	Interval time.Duration

	// Watch rescans shortly after files under Roots change, in addition to the interval.
	Watch    bool
	Debounce time.Duration
}

// Loop scans immediately, then sleeps Interval after each scan finishes, until
// ctx is done. Failed scans are logged and retried on the next cycle.
func (s *Scanner) Loop(ctx context.Context, config LoopConfig) error {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	var watcher *fsnotify.Watcher
	if config.Watch {
		w, err := s.watch(config.Roots)
		if err != nil {
			s.logger.Warn("file watching disabled", "error", err)
		} else {
			watcher = w
			defer watcher.Close()
			events, watchErrors = watcher.Events, watcher.Errors
		}
	}

	s.cycle(ctx, config.Roots, "startup")

	timer := time.NewTimer(config.Interval)
	defer timer.Stop()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			s.cycle(ctx, config.Roots, "interval")
			timer.Reset(config.Interval)

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Has(fsnotify.Create) {
				s.addTree(watcher, event.Name)
			}
			if pending == nil && relevant(event) {
				pending = time.After(config.Debounce)
			}

		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			s.logger.Warn("file watch error", "error", err)

		case <-pending:
			pending = nil
			s.cycle(ctx, config.Roots, "change")
			timer.Reset(config.Interval)
		}
	}
}

func (s *Scanner) cycle(ctx context.Context, roots []string, reason string) {
	start := time.Now()
	discovered, err := s.Scan(ctx, roots)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("scan failed", "reason", reason, "discovered", discovered, "error", err)
		}
		return
	}
	s.logger.Info("scan finished", "reason", reason, "discovered", discovered, "duration", time.Since(start))
}

func (s *Scanner) watch(roots []string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		s.addTree(watcher, root)
	}
	return watcher, nil
}

// addTree watches dir and every directory below it. fsnotify is not recursive.
func (s *Scanner) addTree(watcher *fsnotify.Watcher, dir string) {
	if watcher == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			s.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// relevant ignores pure permission changes and editor swap files.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}
