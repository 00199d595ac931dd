package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// wasiEntry is the WASI command entrypoint every tool module must export.
// It is the module-level rendition of run(input) -> result<string, string>:
// input arrives on stdin, output leaves on stdout, and a nonzero exit
// status carries the error message on stderr.
const wasiEntry = "_start"

// WazeroEngine is the production Engine backed by wazero. One engine is
// created at startup and shared across all components; compiled machine
// code is cached on disk so restarts skip recompilation.
type WazeroEngine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
}

// NewWazeroEngine creates the engine. cacheDir, when non-empty, holds
// the precompiled form of each component; the cache is keyed by wazero's
// own version so a serialized form is never consumed across engine
// versions.
func NewWazeroEngine(ctx context.Context, cacheDir string) (*WazeroEngine, error) {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	var cache wazero.CompilationCache
	if cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache: %w", err)
		}
		cfg = cfg.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	slog.Debug("wazero engine initialized", "cache_dir", cacheDir)
	return &WazeroEngine{runtime: rt, cache: cache}, nil
}

// Compile compiles a wasm binary and verifies it exports the WASI
// entrypoint.
func (e *WazeroEngine) Compile(ctx context.Context, componentID string, wasm []byte) (CompiledTool, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompilationFailed, componentID, err)
	}

	if _, ok := compiled.ExportedFunctions()[wasiEntry]; !ok {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("%w: %s: no %q export; module does not implement the tool ABI",
			ErrInvocationFailed, componentID, wasiEntry)
	}

	return &wazeroTool{engine: e, compiled: compiled, componentID: componentID}, nil
}

// Close releases the runtime and the compilation cache.
func (e *WazeroEngine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

type wazeroTool struct {
	engine      *WazeroEngine
	compiled    wazero.CompiledModule
	componentID string
}

// Invoke instantiates the module against a fresh deny-default sandbox:
// no preopens, no host environment variables, stdin/stdout/stderr wired
// to this call only. The instance is torn down before returning.
func (t *wazeroTool) Invoke(ctx context.Context, input []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cfg := wazero.NewModuleConfig().
		WithName(""). // anonymous: concurrent instantiations never collide
		WithArgs(t.componentID).
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := t.engine.runtime.InstantiateModule(ctx, t.compiled, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 0 {
				return stdout.Bytes(), nil
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = fmt.Sprintf("exit status %d", exitErr.ExitCode())
			}
			return nil, &ToolError{Message: msg}
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvocationFailed, t.componentID, err)
	}

	return stdout.Bytes(), nil
}

func (t *wazeroTool) Close(ctx context.Context) error {
	return t.compiled.Close(ctx)
}
