package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// defaultInvokeTimeout bounds an invocation when the component's policy
// does not set one.
const defaultInvokeTimeout = 15 * time.Second

type loadedComponent struct {
	tool CompiledTool
	meta ComponentMeta
}

// Manager owns the component and tool indexes and drives the component
// lifecycle: load, restore, invoke, unload.
//
// Locking: componentsMu guards the component index, toolsMu the tool
// index. When both are needed, componentsMu is acquired first.
type Manager struct {
	engine  Engine
	storage *Storage

	componentsMu sync.RWMutex
	components   map[string]*loadedComponent // component_id → compiled

	toolsMu sync.RWMutex
	tools   map[string]string // tool_name → component_id
}

// NewManager creates a manager over the given engine and storage
// directory.
func NewManager(engine Engine, storageDir string) (*Manager, error) {
	storage := NewStorage(storageDir)
	if err := storage.Init(); err != nil {
		return nil, err
	}
	return &Manager{
		engine:     engine,
		storage:    storage,
		components: make(map[string]*loadedComponent),
		tools:      make(map[string]string),
	}, nil
}

// Storage exposes the on-disk layout (for the wazero cache directory).
func (m *Manager) Storage() *Storage { return m.storage }

// LoadComponent persists and loads a built tool. Loading an already
// loaded component id is a no-op. After this returns the tool appears
// in ListTools and is callable.
func (m *Manager) LoadComponent(ctx context.Context, wasmPath string, meta ComponentMeta) (string, error) {
	m.componentsMu.RLock()
	_, loaded := m.components[meta.ComponentID]
	m.componentsMu.RUnlock()
	if loaded {
		slog.Debug("component already loaded", "component_id", meta.ComponentID)
		return meta.ComponentID, nil
	}

	slog.Info("loading component", "component_id", meta.ComponentID, "path", wasmPath)

	if meta.WasmHash == "" {
		hash, err := HashWasm(wasmPath)
		if err != nil {
			return "", err
		}
		meta.WasmHash = hash
	}
	if err := m.storage.Store(wasmPath, &meta); err != nil {
		return "", err
	}

	if err := m.loadFromStorage(ctx, meta); err != nil {
		return "", err
	}

	slog.Info("component loaded", "component_id", meta.ComponentID, "tool", meta.ToolName)
	return meta.ComponentID, nil
}

// LoadPersisted loads every component found in storage. Components that
// fail to load are logged and skipped; restoration continues.
func (m *Manager) LoadPersisted(ctx context.Context) {
	ids, err := m.storage.ListComponentIDs()
	if err != nil {
		slog.Warn("failed to list persisted components", "error", err)
		return
	}

	for _, id := range ids {
		meta, err := m.storage.LoadMeta(id)
		if err != nil {
			slog.Warn("failed to load component metadata, skipping", "component_id", id, "error", err)
			continue
		}
		if _, err := os.Stat(m.storage.WasmPath(id)); err != nil {
			slog.Warn("wasm file missing, skipping", "component_id", id)
			continue
		}
		if err := m.loadFromStorage(ctx, *meta); err != nil {
			slog.Warn("failed to restore component, skipping", "component_id", id, "error", err)
			continue
		}
		slog.Info("persisted component restored", "component_id", id, "tool", meta.ToolName)
	}
}

// loadFromStorage compiles the stored wasm and registers it in both
// indexes. Compilation happens outside the locks.
func (m *Manager) loadFromStorage(ctx context.Context, meta ComponentMeta) error {
	wasm, err := os.ReadFile(m.storage.WasmPath(meta.ComponentID))
	if err != nil {
		return fmt.Errorf("read wasm: %w", err)
	}

	tool, err := m.engine.Compile(ctx, meta.ComponentID, wasm)
	if err != nil {
		return err
	}

	// Registration updates both indexes; component index first.
	m.componentsMu.Lock()
	if _, exists := m.components[meta.ComponentID]; exists {
		m.componentsMu.Unlock()
		_ = tool.Close(ctx)
		return nil
	}
	m.components[meta.ComponentID] = &loadedComponent{tool: tool, meta: meta}
	m.toolsMu.Lock()
	m.tools[meta.ToolName] = meta.ComponentID
	m.toolsMu.Unlock()
	m.componentsMu.Unlock()
	return nil
}

// UnloadComponent removes a component from both indexes. On-disk
// artifacts persist until Delete.
func (m *Manager) UnloadComponent(ctx context.Context, componentID string) error {
	m.componentsMu.Lock()
	loaded, ok := m.components[componentID]
	if !ok {
		m.componentsMu.Unlock()
		return fmt.Errorf("%w: %s", ErrComponentNotFound, componentID)
	}
	delete(m.components, componentID)
	m.toolsMu.Lock()
	delete(m.tools, loaded.meta.ToolName)
	m.toolsMu.Unlock()
	m.componentsMu.Unlock()

	_ = loaded.tool.Close(ctx)
	slog.Info("component unloaded", "component_id", componentID)
	return nil
}

// Delete unloads a component and removes its on-disk artifacts.
func (m *Manager) Delete(ctx context.Context, componentID string) error {
	if err := m.UnloadComponent(ctx, componentID); err != nil {
		return err
	}
	return m.storage.Delete(componentID)
}

// ListTools returns metadata for every loaded component, sorted by tool
// name.
func (m *Manager) ListTools() []ComponentMeta {
	m.componentsMu.RLock()
	defer m.componentsMu.RUnlock()

	out := make([]ComponentMeta, 0, len(m.components))
	for _, c := range m.components {
		out = append(out, c.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out
}

// HasTool reports whether the named tool is currently loaded.
func (m *Manager) HasTool(toolName string) bool {
	m.toolsMu.RLock()
	defer m.toolsMu.RUnlock()
	_, ok := m.tools[toolName]
	return ok
}

// CallTool invokes a loaded tool by name. The arguments are serialized
// to JSON and fed to the tool's entrypoint; the output is parsed as JSON
// with a raw-string fallback. A tool-level failure returns *ToolError;
// the tool stays loaded either way.
func (m *Manager) CallTool(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	m.toolsMu.RLock()
	componentID, ok := m.tools[toolName]
	m.toolsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}

	m.componentsMu.RLock()
	loaded, ok := m.components[componentID]
	m.componentsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, componentID)
	}

	timeout := defaultInvokeTimeout
	if loaded.meta.Resources != nil && loaded.meta.Resources.TimeoutSeconds > 0 {
		timeout = time.Duration(loaded.meta.Resources.TimeoutSeconds) * time.Second
	}
	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input := args
	if len(input) == 0 {
		input = json.RawMessage("null")
	}

	slog.Debug("invoking tool", "tool", toolName, "component_id", componentID)
	output, err := loaded.tool.Invoke(invokeCtx, input)
	if err != nil {
		return nil, err
	}

	if json.Valid(output) && len(output) > 0 {
		return json.RawMessage(output), nil
	}
	// Not JSON: surface the raw text as a JSON string.
	raw, err := json.Marshal(string(output))
	if err != nil {
		return nil, fmt.Errorf("%w: encode output: %v", ErrInvocationFailed, err)
	}
	return raw, nil
}

// Close unloads everything and shuts the engine down.
func (m *Manager) Close(ctx context.Context) error {
	m.componentsMu.Lock()
	for id, c := range m.components {
		_ = c.tool.Close(ctx)
		delete(m.components, id)
	}
	m.toolsMu.Lock()
	m.tools = make(map[string]string)
	m.toolsMu.Unlock()
	m.componentsMu.Unlock()
	return m.engine.Close(ctx)
}
