// Package scanner discovers schedulable targets and registers them in the catalog.
package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livinlefevreloca/periodic/internal/target"
)

// Catalog is the part of the catalog store the scanner writes to.
type Catalog interface {
	RegisterOrUpdateTask(ctx context.Context, sourceLocation, identifier string, intervalSeconds int64) (int64, error)
	RecordScanError(ctx context.Context, sourceLocation, category, message string) error
}

// Scanner walks source roots and upserts every target it finds.
type Scanner struct {
	catalog  Catalog
	resolver target.Resolver
	logger   *slog.Logger
}

// New creates a scanner.
func New(catalog Catalog, resolver target.Resolver, logger *slog.Logger) *Scanner {
	return &Scanner{
		catalog:  catalog,
		resolver: resolver,
		logger:   logger,
	}
}

// Scan discovers targets under roots and returns how many were registered.
// A root or unit that fails is recorded as a scan error and skipped; catalog
// failures abort the scan.
func (s *Scanner) Scan(ctx context.Context, roots []string) (int, error) {
	discovered := 0

	for _, root := range roots {
		locations, err := s.resolver.Enumerate(root)
		if err != nil {
			if err := s.recordFailure(ctx, root, target.CategoryEnumerate, err); err != nil {
				return discovered, err
			}
			continue
		}

		for _, location := range locations {
			if err := ctx.Err(); err != nil {
				return discovered, err
			}

			n, err := s.scanUnit(ctx, location)
			discovered += n
			if err != nil {
				return discovered, err
			}
		}
	}

	s.logger.Debug("scan complete", "roots", len(roots), "discovered", discovered)
	return discovered, nil
}

// scanUnit loads one unit and registers its targets. Only catalog errors are returned.
func (s *Scanner) scanUnit(ctx context.Context, location string) (int, error) {
	unit, err := s.resolver.Load(ctx, location)
	if err != nil {
		return 0, s.recordFailure(ctx, location, target.Category(err), err)
	}

	registered := 0
	for _, t := range unit.Targets {
		identifier := target.Identifier(location, t.Name)
		if t.IntervalSeconds() <= 0 {
			cause := fmt.Errorf("%s: interval %v is shorter than one second", identifier, t.Interval)
			if err := s.recordFailure(ctx, location, target.CategoryInvalidTarget, cause); err != nil {
				return registered, err
			}
			continue
		}
		if _, err := s.catalog.RegisterOrUpdateTask(ctx, location, identifier, t.IntervalSeconds()); err != nil {
			return registered, fmt.Errorf("scanner: register %s: %w", identifier, err)
		}
		registered++
		s.logger.Debug("registered task", "task", identifier, "interval_seconds", t.IntervalSeconds())
	}

	return registered, nil
}

func (s *Scanner) recordFailure(ctx context.Context, location, category string, cause error) error {
	s.logger.Warn("scan failure", "location", location, "category", category, "error", cause)

	if err := s.catalog.RecordScanError(ctx, location, category, cause.Error()); err != nil {
		return fmt.Errorf("scanner: record scan error: %w", err)
	}
	return nil
}
