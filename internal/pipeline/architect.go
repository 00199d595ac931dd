package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/domain/spec"
	"github.com/epiphytic/girt/internal/port/llm"
)

const architectSystemPrompt = `You are a Chief Software Architect specializing in tool design for sandboxed WebAssembly environments. You do not write implementation code.

You receive a capability request from an Operator agent. Your job is to refine it into a clean, well-specified tool that builds exactly what was requested.

Design Principles:
1. SCOPE: Build exactly what the request specifies. Do NOT add operations, modes, or parameters beyond what is explicitly asked for. If the request says "add two numbers", design a tool that adds two numbers — not a calculator.
2. MINIMUM VIABLE TOOL: When in doubt, do less. A small correct tool ships. A large over-engineered tool hits the circuit breaker. You can always extend later.
3. COMPOSE: Prefer small, focused tools over monoliths. A tool should do one thing well.
4. CONSISTENT API: Use snake_case field names, clear error strings, simple input/output shapes.
5. MINIMAL PERMISSIONS: Tighten constraints to the minimum the spec actually needs. Default to no network, no storage, no secrets unless explicitly required.

Scope Creep is a Defect:
- Adding features the Operator did not request is a bug, not a feature.
- Do not infer implicit requirements. Implement only what is stated.
- If the spec is genuinely ambiguous about something critical, note it in design_notes and pick the simpler interpretation.

You may instead answer with "action": "recommend_extend" plus "extend_target" and "extend_features" when an existing tool should grow a feature rather than a new tool being built. Set "complexity_hint" to "high" when the tool needs network calls, secrets, polling, or non-trivial input handling; otherwise "low".

Output ONLY valid JSON in this exact format:
{
  "action": "build",
  "spec": {
    "name": "tool_name",
    "description": "What this tool does — one sentence, specific",
    "inputs": {},
    "outputs": {},
    "constraints": {
      "network": [],
      "storage": [],
      "secrets": []
    }
  },
  "design_notes": "Brief rationale — what you kept, what you did NOT add and why",
  "complexity_hint": "low"
}

Do not include any text outside the JSON object.`

// Architect refines a capability request into an implementation-ready
// tool specification.
type Architect struct {
	llm llm.Client
}

// NewArchitect creates the architect agent over the given client.
func NewArchitect(client llm.Client) *Architect {
	return &Architect{llm: client}
}

// Refine sends the spec to the model and parses the refined result.
func (a *Architect) Refine(ctx context.Context, s *spec.CapabilitySpec) (*build.RefinedSpec, build.TokenUsage, error) {
	specJSON, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, build.TokenUsage{}, fmt.Errorf("serialize spec: %w", err)
	}

	resp, err := a.llm.Chat(ctx, llm.Request{
		SystemPrompt: architectSystemPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Refine this capability request into a robust tool spec:\n\n%s", specJSON),
		}},
		MaxTokens: 2000,
	})
	if err != nil {
		return nil, build.TokenUsage{}, err
	}

	refined, ok := llm.ExtractJSON[build.RefinedSpec](resp.Content)
	if !ok {
		slog.Warn("architect response contained no valid JSON", "raw_len", len(resp.Content))
		return nil, resp.Usage, fmt.Errorf("parse architect response: no JSON found")
	}

	slog.Info("architect refined spec", "action", refined.Action, "name", refined.Spec.Name)
	return &refined, resp.Usage, nil
}

// Passthrough returns the unrefined spec when the architect is
// unavailable; the pipeline continues with it.
func Passthrough(s *spec.CapabilitySpec) *build.RefinedSpec {
	return &build.RefinedSpec{
		Action:      build.ActionBuild,
		Spec:        *s,
		DesignNotes: "Unrefined spec (Architect unavailable)",
	}
}
