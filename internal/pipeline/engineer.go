package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/port/llm"
)

const engineerGoPrompt = `You are a Senior Backend Engineer. You write Go programs that compile with TinyGo to wasip1 modules and run inside a deny-default WASI sandbox.

Target: Go (TinyGo) -> wasm (wasip1).

Tool ABI (mandatory):
1. The program is a WASI command: func main() reads the full JSON input from stdin.
2. On success it writes the JSON result to stdout and exits 0.
3. On a tool-level error it writes a one-line message to stderr and exits with a nonzero status.

TinyGo Constraints:
- Use TinyGo-compatible standard library only. No cgo, no unsafe, no reflect-heavy code.
- Keep allocations minimal; TinyGo has a simple GC.
- No goroutine-heavy patterns; the sandbox runs a single invocation per instance.

Environment Constraints:
- No local filesystem access unless explicitly granted in the spec.
- Network access is restricted to hosts listed in the spec's constraints.
- SECRETS: Never hardcode credentials. Name the required secret in the policy and read it from the injected service response.

Output ONLY valid JSON in this exact format:
{
  "source_code": "// Full Go source code here",
  "wit_definition": "// WIT interface here, or empty string",
  "policy_yaml": "// capability policy YAML here",
  "language": "go"
}

Do not include any text outside the JSON object. Do not use markdown code fences.`

const engineerRustPrompt = `You are a Senior Backend Engineer. You write functions that compile to wasm32-wasi and run inside a deny-default WASI sandbox.

Target: Rust -> wasm (wasip1).

Tool ABI (mandatory):
1. The program is a WASI command: fn main() reads the full JSON input from stdin.
2. On success it writes the JSON result to stdout and exits 0.
3. On a tool-level error it writes a one-line message to stderr and exits with a nonzero status.

Environment Constraints:
- No local filesystem access unless explicitly granted in the spec.
- Network access is restricted to hosts listed in the spec's constraints.
- SECRETS: Never hardcode credentials.
- Available crate dependencies: serde, serde_json.

Output ONLY valid JSON in this exact format:
{
  "source_code": "// Full Rust source code here",
  "wit_definition": "// WIT interface here, or empty string",
  "policy_yaml": "// capability policy YAML here",
  "language": "rust"
}

Do not include any text outside the JSON object. Do not use markdown code fences.`

const engineerAssemblyScriptPrompt = `You are a Senior Backend Engineer. You write functions that compile with AssemblyScript to wasm and run inside a deny-default WASI sandbox.

Target: AssemblyScript -> wasm (wasip1).

Tool ABI (mandatory):
1. The program is a WASI command reading the full JSON input from stdin.
2. On success it writes the JSON result to stdout and exits 0.
3. On a tool-level error it writes a one-line message to stderr and exits with a nonzero status.

AssemblyScript Constraints:
- Use the AssemblyScript standard library (as-*).
- No dynamic imports or eval.
- Use typed arrays and explicit memory management.

Output ONLY valid JSON in this exact format:
{
  "source_code": "// Full AssemblyScript source code here",
  "wit_definition": "// WIT interface here, or empty string",
  "policy_yaml": "// capability policy YAML here",
  "language": "assemblyscript"
}

Do not include any text outside the JSON object. Do not use markdown code fences.`

const engineerFixPrompt = `You previously built a WASM tool that had issues. Fix the code based on the bug ticket below.

Output ONLY the complete fixed code in the same JSON format as before:
{
  "source_code": "// Fixed source code",
  "wit_definition": "// WIT interface (may be unchanged)",
  "policy_yaml": "// capability policy YAML (may be unchanged)",
  "language": "<same language as before>"
}`

// Engineer generates tool source from a refined spec and repairs it from
// bug tickets. The target language selects the system prompt.
type Engineer struct {
	llm    llm.Client
	target build.TargetLanguage
}

// NewEngineer creates the engineer agent with the default Go target.
func NewEngineer(client llm.Client) *Engineer {
	return &Engineer{llm: client, target: build.LanguageGo}
}

// NewEngineerWithTarget creates the engineer agent for an explicit target.
func NewEngineerWithTarget(client llm.Client, target build.TargetLanguage) *Engineer {
	return &Engineer{llm: client, target: target}
}

func (e *Engineer) systemPrompt() string {
	switch e.target {
	case build.LanguageRust:
		return engineerRustPrompt
	case build.LanguageAssemblyScript:
		return engineerAssemblyScriptPrompt
	default:
		return engineerGoPrompt
	}
}

// Build generates the initial source for a refined spec. When a plan is
// present it is appended to the request as the authoritative brief.
func (e *Engineer) Build(ctx context.Context, refined *build.RefinedSpec, plan *build.ImplementationPlan) (*build.BuildOutput, build.TokenUsage, error) {
	specJSON, err := json.MarshalIndent(refined, "", "  ")
	if err != nil {
		return nil, build.TokenUsage{}, fmt.Errorf("serialize spec: %w", err)
	}

	content := fmt.Sprintf("Implement this tool spec as a sandboxed WASM tool:\n\n%s", specJSON)
	if plan != nil {
		planJSON, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return nil, build.TokenUsage{}, fmt.Errorf("serialize plan: %w", err)
		}
		content += fmt.Sprintf("\n\nFollow this implementation plan. Deviations require a code comment explaining why:\n\n%s", planJSON)
	}

	resp, err := e.llm.Chat(ctx, llm.Request{
		SystemPrompt: e.systemPrompt(),
		Messages:     []llm.Message{{Role: "user", Content: content}},
		MaxTokens:    4000,
	})
	if err != nil {
		return nil, build.TokenUsage{}, err
	}

	out := e.parseBuildOutput(resp.Content, refined)
	return out, resp.Usage, nil
}

// Fix regenerates the source from a bug ticket directive.
func (e *Engineer) Fix(ctx context.Context, refined *build.RefinedSpec, previous *build.BuildOutput, ticket *build.BugTicket) (*build.BuildOutput, build.TokenUsage, error) {
	specJSON, _ := json.MarshalIndent(refined, "", "  ")
	ticketJSON, err := json.MarshalIndent(ticket, "", "  ")
	if err != nil {
		return nil, build.TokenUsage{}, fmt.Errorf("serialize ticket: %w", err)
	}

	resp, err := e.llm.Chat(ctx, llm.Request{
		SystemPrompt: engineerFixPrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Original spec:\n%s\n\nPrevious code:\n%s\n\nBug ticket:\n%s",
				specJSON, previous.SourceCode, ticketJSON),
		}},
		MaxTokens: 4000,
	})
	if err != nil {
		return nil, build.TokenUsage{}, err
	}

	out := e.parseBuildOutput(resp.Content, refined)
	return out, resp.Usage, nil
}

// parseBuildOutput parses the model's JSON reply. A reply that is not
// valid JSON is treated as raw source, with a policy generated from the
// spec's constraints.
func (e *Engineer) parseBuildOutput(raw string, refined *build.RefinedSpec) *build.BuildOutput {
	if out, ok := llm.ExtractJSON[build.BuildOutput](raw); ok && out.SourceCode != "" {
		return &out
	}

	policy := build.PolicyFromSpec(&refined.Spec)
	policyYAML, err := policy.YAML()
	if err != nil {
		policyYAML = ""
	}

	slog.Warn("engineer response was not valid JSON, treating as raw source", "language", e.target)
	return &build.BuildOutput{
		SourceCode: raw,
		PolicyYAML: policyYAML,
		Language:   string(e.target),
	}
}
