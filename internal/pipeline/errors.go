// Package pipeline orchestrates the multi-agent build flow: architect →
// optional planner → engineer ↔ (QA ∥ red-team) with bounded iteration,
// plus the supporting queue, publisher, and compiler.
package pipeline

import (
	"errors"
	"fmt"
)

// ErrQueueEmpty is returned by ClaimNext when no pending request exists.
var ErrQueueEmpty = errors.New("queue: no pending requests")

// CircuitBreakerError reports a build abandoned after the iteration limit
// with blocking tickets still open.
type CircuitBreakerError struct {
	Attempts int
	Summary  string
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker after %d iterations: %s", e.Attempts, e.Summary)
}

// CompileError carries the toolchain's stderr for surfacing to the agent.
type CompileError struct {
	Stderr string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile failed: %v", e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
