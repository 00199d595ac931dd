// Package store implements the capability store: a file tree of built
// tools, one directory per tool name, holding the artifact manifest,
// generated source, interface definition, capability policy, and the
// compiled binary.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/epiphytic/girt/internal/domain/build"
)

// ErrToolNotStored indicates the requested tool has no stored artifact.
var ErrToolNotStored = errors.New("store: tool not stored")

// Store is a disk-backed capability store.
//
// Layout under base:
//
//	<tool_name>/
//	  manifest.json   full build-artifact record
//	  source.<ext>    generated source code
//	  world.wit       interface definition (when non-empty)
//	  policy.yaml     capability policy
//	  tool.wasm       compiled binary (once the toolchain produced it)
type Store struct {
	base string
	// pushBin is the subprocess used by PushToRemote; swapped in tests.
	pushBin string
}

// New creates a store rooted at base.
func New(base string) *Store {
	return &Store{base: base, pushBin: "oras"}
}

// Base returns the store's root directory.
func (s *Store) Base() string { return s.base }

// Init creates the store root.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.base, 0o755); err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	return nil
}

// Dir returns the directory that holds (or would hold) a tool.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.base, name)
}

// Save stores a build artifact. The tool directory is assembled in a
// staging directory and moved into place with a rename, so a cancelled
// or crashed run never leaves a half-written tool behind.
func (s *Store) Save(artifact *build.Artifact) (string, error) {
	return s.save(artifact, "")
}

// SaveWithWasm stores a build artifact together with its compiled binary.
func (s *Store) SaveWithWasm(artifact *build.Artifact, wasmPath string) (string, error) {
	return s.save(artifact, wasmPath)
}

func (s *Store) save(artifact *build.Artifact, wasmPath string) (string, error) {
	name := artifact.Spec.Name

	staging, err := os.MkdirTemp(s.base, ".staging-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("store staging: %w", err)
	}
	defer os.RemoveAll(staging)

	manifest, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("store encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, "manifest.json"), manifest, 0o644); err != nil {
		return "", fmt.Errorf("store write manifest: %w", err)
	}

	ext := build.TargetLanguage(artifact.BuildOutput.Language).SourceExt()
	if err := os.WriteFile(filepath.Join(staging, "source."+ext), []byte(artifact.BuildOutput.SourceCode), 0o644); err != nil {
		return "", fmt.Errorf("store write source: %w", err)
	}

	if err := os.WriteFile(filepath.Join(staging, "policy.yaml"), []byte(artifact.BuildOutput.PolicyYAML), 0o644); err != nil {
		return "", fmt.Errorf("store write policy: %w", err)
	}

	if artifact.BuildOutput.WitDefinition != "" {
		if err := os.WriteFile(filepath.Join(staging, "world.wit"), []byte(artifact.BuildOutput.WitDefinition), 0o644); err != nil {
			return "", fmt.Errorf("store write wit: %w", err)
		}
	}

	if wasmPath != "" {
		if err := copyFile(wasmPath, filepath.Join(staging, "tool.wasm")); err != nil {
			return "", fmt.Errorf("store copy wasm: %w", err)
		}
	}

	dst := s.Dir(name)
	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("store replace: %w", err)
	}
	if err := os.Rename(staging, dst); err != nil {
		return "", fmt.Errorf("store publish: %w", err)
	}
	return dst, nil
}

// Get loads a stored artifact by tool name.
func (s *Store) Get(name string) (*build.Artifact, error) {
	content, err := os.ReadFile(filepath.Join(s.Dir(name), "manifest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolNotStored, name)
		}
		return nil, fmt.Errorf("store read manifest: %w", err)
	}
	var artifact build.Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return nil, fmt.Errorf("store decode manifest: %w", err)
	}
	return &artifact, nil
}

// List returns the names of all stored tools: directories that contain a
// manifest.json.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.base, e.Name(), "manifest.json")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a stored tool.
func (s *Store) Remove(name string) error {
	dir := s.Dir(name)
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		return fmt.Errorf("%w: %s", ErrToolNotStored, name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("store remove: %w", err)
	}
	return nil
}

// WasmPath returns the path of a stored tool's compiled binary, or an
// error when none is present.
func (s *Store) WasmPath(name string) (string, error) {
	path := filepath.Join(s.Dir(name), "tool.wasm")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s has no tool.wasm", ErrToolNotStored, name)
	}
	return path, nil
}

// PushToRemote pushes a stored tool to a remote registry reference by
// shelling out to the external push tool. Returns the reference on
// success.
func (s *Store) PushToRemote(ctx context.Context, name, reference string) (string, error) {
	dir := s.Dir(name)
	wasm := filepath.Join(dir, "tool.wasm")
	manifest := filepath.Join(dir, "manifest.json")
	policy := filepath.Join(dir, "policy.yaml")

	for _, path := range []string{wasm, manifest, policy} {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("store push: required file missing: %s", path)
		}
	}

	cmd := exec.CommandContext(ctx, s.pushBin, "push", reference,
		wasm+":application/vnd.wasm.component.layer.v0+wasm",
		policy+":application/vnd.girt.policy.v1+yaml",
		manifest+":application/vnd.girt.manifest.v1+json",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("store push %s: %w: %s", reference, err, out)
	}
	return reference, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
