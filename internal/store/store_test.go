package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/domain/spec"
)

func makeArtifact(name string) *build.Artifact {
	s := spec.CapabilitySpec{
		Name:        name,
		Description: "A published tool",
		Inputs:      json.RawMessage(`{"value":"string"}`),
	}
	return &build.Artifact{
		Spec: s,
		RefinedSpec: build.RefinedSpec{
			Action:      build.ActionBuild,
			Spec:        s,
			DesignNotes: "test",
		},
		BuildOutput: build.BuildOutput{
			SourceCode:    "package main\n\nfunc main() {}\n",
			WitDefinition: "package girt:tool;",
			PolicyYAML:    "version: \"1.0\"",
			Language:      "go",
		},
		QaResult:        build.QaResult{Passed: true, TestsRun: 5, TestsPassed: 5},
		SecurityResult:  build.SecurityResult{Passed: true, ExploitsAttempted: 6},
		BuildIterations: 1,
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "tools"))
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveThenGetRoundTrips(t *testing.T) {
	s := newStore(t)
	artifact := makeArtifact("published_tool")

	dir, err := s.Save(artifact)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"manifest.json", "source.go", "policy.yaml", "world.wit"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}

	got, err := s.Get("published_tool")
	if err != nil {
		t.Fatal(err)
	}
	// Compare canonical JSON forms: raw schema fragments may gain
	// whitespace through the pretty-printed manifest.
	wantJSON, _ := json.Marshal(artifact)
	gotJSON, _ := json.Marshal(got)
	if string(gotJSON) != string(wantJSON) {
		t.Errorf("round-trip mismatch:\ngot  %s\nwant %s", gotJSON, wantJSON)
	}
}

func TestSaveOmitsEmptyWit(t *testing.T) {
	s := newStore(t)
	artifact := makeArtifact("no_wit_tool")
	artifact.BuildOutput.WitDefinition = ""

	dir, err := s.Save(artifact)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "world.wit")); !os.IsNotExist(err) {
		t.Error("world.wit should be absent for empty definitions")
	}
}

func TestSaveWithWasmCopiesBinary(t *testing.T) {
	s := newStore(t)
	wasmSrc := filepath.Join(t.TempDir(), "built.wasm")
	if err := os.WriteFile(wasmSrc, []byte("\x00asm fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	dir, err := s.SaveWithWasm(makeArtifact("wasm_tool"), wasmSrc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tool.wasm")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WasmPath("wasm_tool"); err != nil {
		t.Fatal(err)
	}
}

func TestListReturnsOnlyManifestedDirs(t *testing.T) {
	s := newStore(t)
	if _, err := s.Save(makeArtifact("tool_b")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(makeArtifact("tool_a")); err != nil {
		t.Fatal(err)
	}
	// A stray directory without a manifest must not be listed.
	if err := os.MkdirAll(filepath.Join(s.Base(), "not_a_tool"), 0o755); err != nil {
		t.Fatal(err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"tool_a", "tool_b"}) {
		t.Errorf("names = %v", names)
	}
}

func TestRemoveDeletesTool(t *testing.T) {
	s := newStore(t)
	if _, err := s.Save(makeArtifact("doomed_tool")); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("doomed_tool"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("doomed_tool"); !errors.Is(err, ErrToolNotStored) {
		t.Errorf("err = %v", err)
	}
}

func TestGetUnknownToolFails(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get("ghost"); !errors.Is(err, ErrToolNotStored) {
		t.Errorf("err = %v", err)
	}
}

func TestSaveReplacesExistingTool(t *testing.T) {
	s := newStore(t)
	first := makeArtifact("replaced_tool")
	if _, err := s.Save(first); err != nil {
		t.Fatal(err)
	}

	second := makeArtifact("replaced_tool")
	second.BuildOutput.SourceCode = "package main // v2"
	if _, err := s.Save(second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("replaced_tool")
	if err != nil {
		t.Fatal(err)
	}
	if got.BuildOutput.SourceCode != "package main // v2" {
		t.Errorf("source = %q", got.BuildOutput.SourceCode)
	}
}
