package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/epiphytic/girt/internal/domain/build"
)

const metadataExt = ".metadata.json"

// ComponentMeta is the registration record stored next to each wasm
// binary. Written by the pipeline after a successful build; read back on
// restore.
type ComponentMeta struct {
	// ComponentID is the stable component identifier (e.g. "fetch_url@0.1.0").
	ComponentID string `json:"component_id"`
	// ToolName is the agent-visible tool name, unique across the loaded set.
	ToolName string `json:"tool_name"`
	// Description is shown in the tool listing.
	Description string `json:"description"`
	// InputSchema is the JSON Schema for tool inputs.
	InputSchema json.RawMessage `json:"input_schema"`
	// WasmHash is the SHA-256 hex of the wasm bytes, recorded at load;
	// restore does not compare it against the stored binary.
	WasmHash string `json:"wasm_hash"`
	// BuiltAt is the pipeline build timestamp (Unix ms).
	BuiltAt int64 `json:"built_at"`
	// Resources optionally bounds invocations; defaults apply when nil.
	Resources *build.PolicyResources `json:"resources,omitempty"`
}

// Storage is the disk layout for loaded components.
//
// Layout under base:
//
//	{component_id}.wasm           source binary
//	{component_id}.metadata.json  registration record
//	cache/                        engine-serialized compiled form
type Storage struct {
	base string
}

// NewStorage creates storage rooted at base.
func NewStorage(base string) *Storage {
	return &Storage{base: base}
}

// Init creates the storage directories.
func (s *Storage) Init() error {
	if err := os.MkdirAll(s.CacheDir(), 0o755); err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	return nil
}

// WasmPath returns the on-disk path of a component's wasm binary.
func (s *Storage) WasmPath(componentID string) string {
	return filepath.Join(s.base, componentID+".wasm")
}

// MetaPath returns the on-disk path of a component's metadata sidecar.
func (s *Storage) MetaPath(componentID string) string {
	return filepath.Join(s.base, componentID+metadataExt)
}

// CacheDir returns the directory holding the engine's precompiled forms.
func (s *Storage) CacheDir() string {
	return filepath.Join(s.base, "cache")
}

// Store copies a wasm binary into storage and writes its metadata
// sidecar. Both files land via temp-then-rename, and the wasm is
// renamed into place before the sidecar: restoration scans for
// sidecars, so a crash between the two leaves at worst an orphaned
// binary, never a sidecar pointing at a truncated one.
func (s *Storage) Store(wasmSrc string, meta *ComponentMeta) error {
	wasm, err := os.ReadFile(wasmSrc)
	if err != nil {
		return fmt.Errorf("storage read wasm: %w", err)
	}
	if err := s.writeAtomic(s.WasmPath(meta.ComponentID), wasm); err != nil {
		return fmt.Errorf("storage write wasm: %w", err)
	}

	content, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("storage encode meta: %w", err)
	}
	if err := s.writeAtomic(s.MetaPath(meta.ComponentID), content); err != nil {
		return fmt.Errorf("storage write meta: %w", err)
	}
	return nil
}

// writeAtomic writes content to a temp file in the storage directory
// and renames it over path, so readers never observe a partial file.
func (s *Storage) writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(s.base, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// LoadMeta reads a component's metadata sidecar.
func (s *Storage) LoadMeta(componentID string) (*ComponentMeta, error) {
	content, err := os.ReadFile(s.MetaPath(componentID))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, componentID)
	}
	var meta ComponentMeta
	if err := json.Unmarshal(content, &meta); err != nil {
		return nil, fmt.Errorf("storage decode meta: %w", err)
	}
	return &meta, nil
}

// ListComponentIDs returns every component persisted on disk (those with
// a metadata sidecar).
func (s *Storage) ListComponentIDs() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage list: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if id, ok := strings.CutSuffix(e.Name(), metadataExt); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete removes a component's on-disk artifacts.
func (s *Storage) Delete(componentID string) error {
	if err := os.Remove(s.MetaPath(componentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage delete meta: %w", err)
	}
	if err := os.Remove(s.WasmPath(componentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage delete wasm: %w", err)
	}
	return nil
}

// HashWasm returns the SHA-256 hex of a wasm file, recorded in the
// component's metadata sidecar.
func HashWasm(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash wasm: %w", err)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}
