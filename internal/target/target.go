// Package target defines how schedulable targets are found and invoked.
//
// A Resolver enumerates source units under a root and loads the targets each
// unit defines. Loading must not run any target. The Executor resolves a
// (location, identifier) pair through the same Resolver and calls the target.
package target

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Target is one schedulable unit of work inside a source unit.
type Target struct {
	Name     string
	Interval time.Duration
	Invoke   func(ctx context.Context) error
}

// IntervalSeconds returns the interval truncated to whole seconds.
func (t Target) IntervalSeconds() int64 {
	return int64(t.Interval / time.Second)
}

// Unit is a loaded source unit and the targets it defines.
type Unit struct {
	Location string
	Targets  []Target
}

// Resolver locates and loads source units.
type Resolver interface {
	// Enumerate returns the unit locations under root, recursively, in a stable order.
	Enumerate(root string) ([]string, error)

	// Load reads a unit and its target definitions.
	Load(ctx context.Context, location string) (*Unit, error)
}

// Load error categories
const (
	CategoryRead          = "read_error"
	CategoryDecode        = "decode_error"
	CategoryInvalidTarget = "invalid_target"
	CategoryUnknownUnit   = "unknown_unit"
	CategoryLoad          = "load_error"
	CategoryEnumerate     = "enumerate_error"
)

// LoadError is returned by Resolver.Load when a unit cannot be read or inspected.
type LoadError struct {
	Location string
	Category string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Location, e.Category, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Category classifies a load failure, falling back to CategoryLoad.
func Category(err error) string {
	var le *LoadError
	if errors.As(err, &le) && le.Category != "" {
		return le.Category
	}
	return CategoryLoad
}

// BaseName returns the unit's file name without directory or extension.
// Manifest units lose their full ".task.toml" suffix.
func BaseName(location string) string {
	base := filepath.Base(location)
	if trimmed, ok := strings.CutSuffix(base, ManifestSuffix); ok && trimmed != "" {
		return trimmed
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ManifestSuffix marks command manifest files.
const ManifestSuffix = ".task.toml"

// Identifier builds the catalog identifier of a target: "{unit base name}.{target name}".
func Identifier(location, name string) string {
	return BaseName(location) + "." + name
}
