// Package dispatch is the request entry point: it holds the current roster
// of agents, routes each request to one of them and records the finished
// trace.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/GreenD93/mcp-project/internal/tool"
)

// Sentinel errors for dispatcher operations.
var (
	// ErrEmptyInput is returned for blank user text. It is the only error Run
	// returns once the dispatcher is ready.
	ErrEmptyInput = errors.New("dispatch: empty input")

	// ErrNotReady is returned before the first successful refresh.
	ErrNotReady = errors.New("dispatch: roster not loaded")

	// ErrNoToolScope is returned when an agent owns no tool registry.
	ErrNoToolScope = errors.New("dispatch: agent has no tools")
)

// ValidationError is returned by InvokeTool when the arguments fail the
// tool's schema. The tool is not called.
type ValidationError struct {
	Result tool.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dispatch: invalid arguments: %v", e.Result.Errors)
}
