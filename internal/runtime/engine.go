package runtime

import "context"

// Engine compiles wasm binaries into invocable tools. The production
// implementation wraps wazero; tests substitute a deterministic fake.
type Engine interface {
	// Compile turns wasm bytes into a ready-to-invoke tool. This is the
	// expensive once-per-component step; the result is cached by the
	// lifecycle manager.
	Compile(ctx context.Context, componentID string, wasm []byte) (CompiledTool, error)

	// Close releases the engine and everything compiled against it.
	Close(ctx context.Context) error
}

// CompiledTool is a compiled, pre-linked tool. Each Invoke runs in a
// fresh sandbox instance: no filesystem preopens, no host environment,
// no state carried between calls.
type CompiledTool interface {
	// Invoke feeds the JSON input to a fresh instance and returns its
	// JSON output. A tool-level failure is returned as *ToolError; an
	// infrastructure failure wraps ErrInvocationFailed.
	Invoke(ctx context.Context, input []byte) ([]byte, error)

	// Close releases the compiled tool.
	Close(ctx context.Context) error
}
