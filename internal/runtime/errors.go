// Package runtime embeds the wasm tool runtime: it compiles, caches,
// and invokes sandboxed tool modules under a deny-default capability
// model.
package runtime

import (
	"errors"
	"fmt"
)

// ErrToolNotFound indicates no loaded component serves the tool name.
var ErrToolNotFound = errors.New("runtime: tool not found")

// ErrComponentNotFound indicates the component id is not loaded.
var ErrComponentNotFound = errors.New("runtime: component not found")

// ErrInvocationFailed indicates runtime infrastructure failed around an
// invocation (instantiation failure, missing entry export). The tool may
// be tried again later.
var ErrInvocationFailed = errors.New("runtime: invocation failed")

// ErrCompilationFailed indicates the wasm binary did not compile.
var ErrCompilationFailed = errors.New("runtime: compilation failed")

// ToolError is a tool-level failure: the tool ran and reported an error
// through its ABI. The tool remains loaded.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error: %s", e.Message)
}
