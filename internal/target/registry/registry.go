// Package registry is an in-process target resolver.
//
// Targets are plain Go functions registered against a source location at
// start-up. A Registry is an ordinary value; nothing is shared between
// registries, so each test or process builds its own.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/livinlefevreloca/periodic/internal/target"
)

// Registry maps source locations to the targets they define.
type Registry struct {
	mu       sync.RWMutex
	units    map[string][]target.Target
	failures map[string]error
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		units:    make(map[string][]target.Target),
		failures: make(map[string]error),
	}
}

// Register adds a target to the unit at location. Registering the same
// name twice replaces the earlier definition.
func (r *Registry) Register(location, name string, interval time.Duration, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	location = filepath.Clean(location)
	targets := r.units[location]
	for i := range targets {
		if targets[i].Name == name {
			targets[i] = target.Target{Name: name, Interval: interval, Invoke: fn}
			return
		}
	}
	r.units[location] = append(targets, target.Target{Name: name, Interval: interval, Invoke: fn})
}

// Fail makes the unit at location fail to load with err until cleared with Fail(location, nil).
func (r *Registry) Fail(location string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	location = filepath.Clean(location)
	if err == nil {
		delete(r.failures, location)
		return
	}
	r.failures[location] = err
}

// Enumerate returns the registered locations under root.
func (r *Registry) Enumerate(root string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	root = filepath.Clean(root)
	var locations []string
	seen := make(map[string]bool)
	add := func(loc string) {
		if !seen[loc] && within(root, loc) {
			seen[loc] = true
			locations = append(locations, loc)
		}
	}
	for loc := range r.units {
		add(loc)
	}
	for loc := range r.failures {
		add(loc)
	}

	sort.Strings(locations)
	return locations, nil
}

// Load returns the targets registered for location.
func (r *Registry) Load(_ context.Context, location string) (*target.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	location = filepath.Clean(location)
	if err, ok := r.failures[location]; ok {
		return nil, &target.LoadError{Location: location, Category: target.Category(err), Err: err}
	}

	targets, ok := r.units[location]
	if !ok {
		return nil, &target.LoadError{
			Location: location,
			Category: target.CategoryUnknownUnit,
			Err:      fmt.Errorf("no targets registered"),
		}
	}

	unit := &target.Unit{Location: location, Targets: make([]target.Target, len(targets))}
	copy(unit.Targets, targets)
	sort.Slice(unit.Targets, func(i, j int) bool {
		return unit.Targets[i].Name < unit.Targets[j].Name
	})
	return unit, nil
}

func within(root, location string) bool {
	if root == location {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(location, prefix)
}
