package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/port/llm"
)

const plannerSystemPrompt = `You are a Senior Security Architect and Implementation Planner for sandboxed WebAssembly components. You do not write code. You produce implementation plans.

You receive a tool spec that has already been refined by an Architect. Your job is to think through the full implementation before any code is written. Be specific and exhaustive — the Engineer will treat your plan as the authoritative reference and must not deviate without documenting why.

Think through each of the following areas carefully:

1. VALIDATION LAYER
   For each input field: what must be validated before any external calls?
   Be specific: exact max lengths, allowed character sets, format requirements (e.g. "must be all digits 1-20 chars"), sanitization rules (strip CRLF, escape HTML entities, remove mention triggers).
   State the order of validation — fail fast on cheap checks before expensive ones.

2. SECURITY NOTES (Threat Model)
   For each input field: what can a malicious caller do?
   Cover: CRLF/header injection (for HTTP-touching fields), path traversal (for fields used in URLs), resource exhaustion (unbounded loops, missing timeouts, oversized payloads), identity spoofing (username vs user ID), prompt injection (if any field ends up in LLM context).
   State the specific mitigation for each threat.

3. API SEQUENCE
   List every external call in order. For each:
   - Exact endpoint and HTTP method
   - Which inputs map to which request fields (and how they're encoded)
   - What the success response looks like (status code, key fields)
   - What error cases are possible and how each is handled
   - Any polling logic: how long to sleep between polls, how to honor the timeout, termination condition

4. EDGE CASES
   Document the required behavior for:
   - Empty or minimal inputs (empty lists, zero values, blank strings)
   - Maximum / boundary values (longest allowed strings, largest allowed numbers)
   - Timeout scenarios: what happens when the deadline expires mid-operation
   - Partial failure: what to return if some calls succeed and others fail
   - Concurrent callers (if the component might be called multiple times simultaneously)

5. IMPLEMENTATION GUIDANCE
   WASM+WASI-specific patterns:
   - What works well in the target runtime and what to avoid
   - How to structure the sleep/poll loop without blocking the runtime
   - How to handle response body reading (streaming vs buffered)
   - What NOT to use (threads, blocking syscalls, native networking)
   - Any encoding/escaping specifics (percent-encoding, JSON escaping, etc.)

Output ONLY valid JSON in this exact format:
{
  "validation_layer": "...",
  "security_notes": "...",
  "api_sequence": "...",
  "edge_cases": "...",
  "implementation_guidance": "..."
}

Each field must be a single string (use \n for newlines within the string). Be thorough — the Engineer has no other reference. Do not include any text outside the JSON object.`

// Planner produces a structured implementation brief for complex tools.
// It runs between the architect and the engineer when the refined spec
// meets complexity triggers.
type Planner struct {
	llm llm.Client
}

// NewPlanner creates the planner agent over the given client.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{llm: client}
}

// Plan produces an implementation plan for the refined spec.
func (p *Planner) Plan(ctx context.Context, refined *build.RefinedSpec) (*build.ImplementationPlan, build.TokenUsage, error) {
	specJSON, err := json.MarshalIndent(refined, "", "  ")
	if err != nil {
		return nil, build.TokenUsage{}, fmt.Errorf("serialize spec: %w", err)
	}

	resp, err := p.llm.Chat(ctx, llm.Request{
		SystemPrompt: plannerSystemPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Produce an implementation plan for this tool spec:\n\n%s", specJSON),
		}},
		MaxTokens: 4000,
	})
	if err != nil {
		return nil, build.TokenUsage{}, err
	}

	plan, ok := llm.ExtractJSON[build.ImplementationPlan](resp.Content)
	if !ok {
		return nil, resp.Usage, fmt.Errorf("parse planner response: no JSON found")
	}

	slog.Info("planner produced implementation plan", "spec", refined.Spec.Name)
	return &plan, resp.Usage, nil
}

// NeedsPlan reports whether the refined spec meets any planner trigger:
// an explicit high complexity hint, network or secret constraints, a
// description mentioning polling or timeouts, or at least two
// string-typed input fields.
func NeedsPlan(refined *build.RefinedSpec) bool {
	if refined.ComplexityHint == build.ComplexityHigh {
		return true
	}
	if len(refined.Spec.Constraints.Network) > 0 || len(refined.Spec.Constraints.Secrets) > 0 {
		return true
	}

	desc := strings.ToLower(refined.Spec.Description)
	for _, kw := range []string{"poll", "wait", "timeout"} {
		if strings.Contains(desc, kw) {
			return true
		}
	}

	return stringInputFields(refined.Spec.Inputs) >= 2
}

// stringInputFields counts input schema fields whose declared type
// mentions a string. Accepts both the shorthand {"field": "string"} and
// JSON-Schema-ish {"field": {"type": "string"}} shapes.
func stringInputFields(inputs json.RawMessage) int {
	if len(inputs) == 0 {
		return 0
	}
	var fields map[string]any
	if err := json.Unmarshal(inputs, &fields); err != nil {
		return 0
	}
	// Unwrap a JSON-Schema object if the shorthand is absent.
	if props, ok := fields["properties"].(map[string]any); ok {
		fields = props
	}

	count := 0
	for _, v := range fields {
		switch tv := v.(type) {
		case string:
			if strings.Contains(strings.ToLower(tv), "str") {
				count++
			}
		case map[string]any:
			if ts, ok := tv["type"].(string); ok && strings.Contains(strings.ToLower(ts), "str") {
				count++
			}
		}
	}
	return count
}
