package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/epiphytic/girt/internal/domain/build"
)

// CompileInput is everything the compiler needs to produce a wasm binary.
type CompileInput struct {
	ToolName    string
	ToolVersion string
	Output      build.BuildOutput
}

// CompileOutput points at the produced binary and the scratch project.
type CompileOutput struct {
	WasmPath string
	BuildDir string
}

// Compiler scaffolds a project for generated tool source and shells out
// to the wasm toolchain. The toolchain is an external collaborator: only
// Go (TinyGo → wasip1) is wired in-tree.
type Compiler struct {
	tinygoBin string
}

// NewCompiler creates a compiler using the tinygo binary on PATH.
func NewCompiler() *Compiler {
	return &Compiler{tinygoBin: "tinygo"}
}

// Scaffold writes the generated source into a buildable project layout
// under baseDir and returns the project directory.
func (c *Compiler) Scaffold(input *CompileInput, baseDir string) (string, error) {
	projectDir := filepath.Join(baseDir, input.ToolName)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return "", fmt.Errorf("scaffold: %w", err)
	}

	goMod := fmt.Sprintf("module %s\n\ngo 1.24\n", sanitizeModuleName(input.ToolName))
	if err := os.WriteFile(filepath.Join(projectDir, "go.mod"), []byte(goMod), 0o644); err != nil {
		return "", fmt.Errorf("scaffold go.mod: %w", err)
	}
	if err := os.WriteFile(filepath.Join(projectDir, "main.go"), []byte(input.Output.SourceCode), 0o644); err != nil {
		return "", fmt.Errorf("scaffold main.go: %w", err)
	}
	if input.Output.WitDefinition != "" {
		witDir := filepath.Join(projectDir, "wit")
		if err := os.MkdirAll(witDir, 0o755); err != nil {
			return "", fmt.Errorf("scaffold wit dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(witDir, "world.wit"), []byte(input.Output.WitDefinition), 0o644); err != nil {
			return "", fmt.Errorf("scaffold world.wit: %w", err)
		}
	}
	return projectDir, nil
}

// Compile scaffolds and builds the tool, returning the wasm path. A
// toolchain failure surfaces as a CompileError carrying stderr; it is
// not retried.
func (c *Compiler) Compile(ctx context.Context, input *CompileInput) (*CompileOutput, error) {
	if lang := build.TargetLanguage(input.Output.Language); lang != build.LanguageGo {
		return nil, &CompileError{
			Stderr: "",
			Err:    fmt.Errorf("no in-tree toolchain for language %q", lang),
		}
	}

	scratch, err := os.MkdirTemp("", "girt-build-*")
	if err != nil {
		return nil, fmt.Errorf("compile scratch: %w", err)
	}

	projectDir, err := c.Scaffold(input, scratch)
	if err != nil {
		os.RemoveAll(scratch)
		return nil, err
	}

	wasmPath := filepath.Join(projectDir, input.ToolName+".wasm")
	cmd := exec.CommandContext(ctx, c.tinygoBin, "build", "-target=wasip1", "-o", wasmPath, ".")
	cmd.Dir = projectDir
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &CompileError{Stderr: stderr.String(), Err: err}
	}
	if _, err := os.Stat(wasmPath); err != nil {
		return nil, &CompileError{Stderr: stderr.String(), Err: fmt.Errorf("no wasm produced: %w", err)}
	}
	return &CompileOutput{WasmPath: wasmPath, BuildDir: projectDir}, nil
}

// sanitizeModuleName makes a tool name usable as a Go module path
// segment.
func sanitizeModuleName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
}
