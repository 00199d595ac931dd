package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/port/llm"
)

const qaSystemPrompt = `You are a QA Automation Engineer. You are given a tool specification and its implementation.

Your objective is to verify functional correctness.

Generate test cases covering:
1. Standard use cases (happy path)
2. Edge cases (empty inputs, boundary values, unicode)
3. Malformed inputs (wrong types, missing fields, oversized payloads)

Output ONLY valid JSON:
{
  "passed": true/false,
  "tests_run": <number>,
  "tests_passed": <number>,
  "tests_failed": <number>,
  "bug_tickets": [
    {
      "target": "engineer",
      "ticket_type": "functional_defect",
      "severity": "critical" | "high" | "medium" | "low",
      "input": <the failing input>,
      "expected": "what should happen",
      "actual": "what actually happened",
      "remediation_directive": "specific fix instruction"
    }
  ]
}

If all tests pass, set passed=true and bug_tickets=[].
Do not include any text outside the JSON object.`

// QA verifies functional correctness of a build output.
type QA struct {
	llm llm.Client
}

// NewQA creates the QA agent over the given client.
func NewQA(client llm.Client) *QA {
	return &QA{llm: client}
}

// Test runs the QA pass and returns its verdict. A reply with no
// parseable JSON counts as a failed pass with no tickets.
func (q *QA) Test(ctx context.Context, refined *build.RefinedSpec, out *build.BuildOutput) (build.QaResult, build.TokenUsage, error) {
	specJSON, _ := json.MarshalIndent(refined.Spec, "", "  ")

	resp, err := q.llm.Chat(ctx, llm.Request{
		SystemPrompt: qaSystemPrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Spec:\n%s\n\nSource code:\n%s\n\nWIT:\n%s\n\nPolicy:\n%s",
				specJSON, out.SourceCode, out.WitDefinition, out.PolicyYAML),
		}},
		MaxTokens: 2000,
	})
	if err != nil {
		return build.QaResult{}, build.TokenUsage{}, err
	}

	result, ok := llm.ExtractJSON[build.QaResult](resp.Content)
	if !ok {
		slog.Warn("qa response contained no valid JSON, defaulting to fail")
		result = build.QaResult{Passed: false}
	}

	slog.Info("qa testing complete",
		"passed", result.Passed,
		"tests_run", result.TestsRun,
		"tests_passed", result.TestsPassed,
		"tests_failed", result.TestsFailed,
		"bug_tickets", len(result.BugTickets),
	)
	return result, resp.Usage, nil
}
