package target

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTargetNotFound is returned when a unit no longer defines the requested identifier.
var ErrTargetNotFound = errors.New("target: not found")

// ExecutionError wraps any failure to resolve or run a target.
type ExecutionError struct {
	Location   string
	Identifier string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Identifier, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor resolves targets through a Resolver and invokes them synchronously.
type Executor struct {
	resolver Resolver
	timeout  time.Duration
}

// NewExecutor creates an executor. A positive timeout bounds each invocation.
func NewExecutor(resolver Resolver, timeout time.Duration) *Executor {
	return &Executor{resolver: resolver, timeout: timeout}
}

// Invoke loads the unit at location and calls the target named by identifier.
// Every failure, including a panic in the target, is returned as *ExecutionError.
func (e *Executor) Invoke(ctx context.Context, location, identifier string) error {
	t, err := e.resolve(ctx, location, identifier)
	if err != nil {
		return &ExecutionError{Location: location, Identifier: identifier, Err: err}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := call(ctx, t); err != nil {
		return &ExecutionError{Location: location, Identifier: identifier, Err: err}
	}
	return nil
}

func (e *Executor) resolve(ctx context.Context, location, identifier string) (*Target, error) {
	unit, err := e.resolver.Load(ctx, location)
	if err != nil {
		return nil, err
	}

	for i := range unit.Targets {
		if Identifier(location, unit.Targets[i].Name) == identifier {
			return &unit.Targets[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrTargetNotFound, identifier, location)
}

// call runs the target on its own goroutine so a target that ignores its
// context still releases the caller once the context is done.
func call(ctx context.Context, t *Target) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- t.Invoke(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s abandoned: %w", t.Name, ctx.Err())
	}
}
