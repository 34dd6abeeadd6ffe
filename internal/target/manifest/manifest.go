// Package manifest resolves targets from "*.task.toml" files on disk.
//
// A manifest declares one or more commands and their intervals:
//
//	[[task]]
//	name = "rotate"
//	interval = "15m"
//	command = ["logrotate", "/etc/logrotate.conf"]
//
// Loading a manifest only decodes it. Commands run when a target is invoked.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/livinlefevreloca/periodic/internal/target"
)

// maxStderrTail bounds how much stderr is kept in a failure message.
const maxStderrTail = 512

const waitDelay = time.Second

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// File is the decoded form of a manifest.
type File struct {
	Tasks []Task `toml:"task"`
}

// Task is a single command definition.
type Task struct {
	Name     string        `toml:"name"`
	Interval time.Duration `toml:"interval"`
	Command  []string      `toml:"command"`
	Dir      string        `toml:"dir"`
	Env      []string      `toml:"env"`
}

// Resolver loads manifests from the local filesystem.
type Resolver struct{}

// NewResolver creates a manifest resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Enumerate walks root and returns every manifest beneath it, sorted.
func (r *Resolver) Enumerate(root string) ([]string, error) {
	var locations []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), target.ManifestSuffix) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			locations = append(locations, abs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(locations)
	return locations, nil
}

// Load decodes and validates the manifest at location.
func (r *Resolver) Load(_ context.Context, location string) (*target.Unit, error) {
	content, err := os.ReadFile(location)
	if err != nil {
		return nil, &target.LoadError{Location: location, Category: target.CategoryRead, Err: err}
	}

	file, err := Parse(content)
	if err != nil {
		category := target.CategoryInvalidTarget
		var perr toml.ParseError
		if errors.As(err, &perr) || isDecodeError(err) {
			category = target.CategoryDecode
		}
		return nil, &target.LoadError{Location: location, Category: category, Err: err}
	}

	unit := &target.Unit{Location: location}
	baseDir := filepath.Dir(location)
	for _, task := range file.Tasks {
		unit.Targets = append(unit.Targets, target.Target{
			Name:     task.Name,
			Interval: task.Interval,
			Invoke:   task.runner(baseDir),
		})
	}
	return unit, nil
}

// decodeError marks TOML decoding failures that are not syntax errors,
// such as a string where a list was expected.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}

// Parse decodes manifest content and validates every task.
func Parse(content []byte) (*File, error) {
	var file File
	md, err := toml.Decode(string(content), &file)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &decodeError{err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown manifest keys: %v", undecoded)
	}

	if len(file.Tasks) == 0 {
		return nil, errors.New("manifest defines no [[task]] entries")
	}

	seen := make(map[string]bool)
	for i, task := range file.Tasks {
		if err := task.validate(); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		if seen[task.Name] {
			return nil, fmt.Errorf("duplicate task name %q", task.Name)
		}
		seen[task.Name] = true
	}

	return &file, nil
}

func (t Task) validate() error {
	if !nameRegex.MatchString(t.Name) {
		return fmt.Errorf("invalid name %q (must match %s)", t.Name, nameRegex)
	}
	if t.Interval < time.Second {
		return fmt.Errorf("%s: interval must be at least 1s, got %v", t.Name, t.Interval)
	}
	if t.Interval%time.Second != 0 {
		return fmt.Errorf("%s: interval must be a whole number of seconds, got %v", t.Name, t.Interval)
	}
	if len(t.Command) == 0 || t.Command[0] == "" {
		return fmt.Errorf("%s: command must not be empty", t.Name)
	}
	for _, kv := range t.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("%s: env entry %q is not KEY=VALUE", t.Name, kv)
		}
	}
	return nil
}

func (t Task) runner(baseDir string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, t.Command[0], t.Command[1:]...)
		cmd.Dir = baseDir
		if t.Dir != "" {
			cmd.Dir = t.Dir
			if !filepath.IsAbs(t.Dir) {
				cmd.Dir = filepath.Join(baseDir, t.Dir)
			}
		}
		cmd.Env = append(os.Environ(), t.Env...)

		// Grandchildren can keep stderr open after the command is killed.
		cmd.WaitDelay = waitDelay

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if tail := stderrTail(stderr.Bytes()); tail != "" {
				return fmt.Errorf("%w: %s", err, tail)
			}
			return err
		}
		return nil
	}
}

func stderrTail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxStderrTail {
		b = b[len(b)-maxStderrTail:]
	}
	return string(b)
}
