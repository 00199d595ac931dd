package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/domain/spec"
	"github.com/epiphytic/girt/internal/port/llm"
)

func makeRequest() *build.CapabilityRequest {
	req := build.NewCapabilityRequest(spec.CapabilitySpec{
		Name:        "test_tool",
		Description: "A test tool",
		Inputs:      json.RawMessage(`{"value": "string"}`),
		Outputs:     json.RawMessage(`{"result": "string"}`),
	}, build.SourceOperator)
	return &req
}

func makeRefinedSpec() *build.RefinedSpec {
	return &build.RefinedSpec{
		Action: build.ActionBuild,
		Spec: spec.CapabilitySpec{
			Name:        "test_tool",
			Description: "A test tool",
			Inputs:      json.RawMessage(`{"value": "string"}`),
			Outputs:     json.RawMessage(`{"result": "string"}`),
		},
		DesignNotes: "test",
	}
}

const architectResp = `{
	"action": "build",
	"spec": {
		"name": "test_tool",
		"description": "A test tool",
		"inputs": {"value": "string"},
		"outputs": {"result": "string"},
		"constraints": {"network": [], "storage": [], "secrets": []}
	},
	"design_notes": "Simple tool",
	"complexity_hint": "low"
}`

const engineerResp = `{
	"source_code": "package main\n\nfunc main() {}\n",
	"wit_definition": "",
	"policy_yaml": "version: \"1.0\"",
	"language": "go"
}`

const engineerFixResp = `{
	"source_code": "package main\n\nfunc main() { /* v2 fixed */ }\n",
	"wit_definition": "",
	"policy_yaml": "version: \"1.0\"",
	"language": "go"
}`

const qaPass = `{"passed": true, "tests_run": 5, "tests_passed": 5, "tests_failed": 0, "bug_tickets": []}`

const qaFail = `{
	"passed": false,
	"tests_run": 5,
	"tests_passed": 3,
	"tests_failed": 2,
	"bug_tickets": [{
		"target": "engineer",
		"ticket_type": "functional_defect",
		"severity": "critical",
		"input": {"value": -1},
		"expected": "error response",
		"actual": "panic",
		"remediation_directive": "Add bounds checking"
	}]
}`

const securityPass = `{"passed": true, "exploits_attempted": 6, "exploits_succeeded": 0, "bug_tickets": []}`

const securityFail = `{
	"passed": false,
	"exploits_attempted": 6,
	"exploits_succeeded": 1,
	"bug_tickets": [{
		"target": "engineer",
		"ticket_type": "security_vulnerability",
		"input": {"exploit": "payload"},
		"expected": "blocked",
		"actual": "succeeded",
		"remediation_directive": "Add validation"
	}]
}`

func TestHappyPathBuildsArtifact(t *testing.T) {
	// architect -> engineer -> qa -> red-team. QA and red-team run
	// concurrently, so both review responses must parse either way;
	// here both are structurally valid for either agent.
	client := llm.NewStub(architectResp, engineerResp, qaPass, securityPass)
	o := NewOrchestrator(client, Options{})

	outcome := o.Run(context.Background(), makeRequest())
	if outcome.Status != OutcomeBuilt {
		t.Fatalf("status = %s, err = %v", outcome.Status, outcome.Err)
	}
	artifact := outcome.Artifact
	if artifact.BuildIterations != 1 {
		t.Errorf("iterations = %d, want 1", artifact.BuildIterations)
	}
	if !artifact.QaResult.Passed || !artifact.SecurityResult.Passed {
		t.Errorf("qa=%v security=%v", artifact.QaResult.Passed, artifact.SecurityResult.Passed)
	}
	if artifact.Escalated {
		t.Error("unexpected escalation")
	}
	if len(artifact.Timings.Iterations) != 1 {
		t.Errorf("iteration timings = %d entries", len(artifact.Timings.Iterations))
	}
}

func TestRecommendExtendSkipsBuild(t *testing.T) {
	resp := `{
		"action": "recommend_extend",
		"spec": {
			"name": "test_tool",
			"description": "A test tool",
			"inputs": {},
			"outputs": {},
			"constraints": {"network": [], "storage": [], "secrets": []}
		},
		"design_notes": "Extend existing tool",
		"extend_target": "existing_tool",
		"extend_features": ["new_feature"]
	}`
	client := llm.Constant(resp)
	o := NewOrchestrator(client, Options{})

	outcome := o.Run(context.Background(), makeRequest())
	if outcome.Status != OutcomeRecommendExtend {
		t.Fatalf("status = %s", outcome.Status)
	}
	if outcome.ExtendTarget != "existing_tool" {
		t.Errorf("target = %s", outcome.ExtendTarget)
	}
	if len(outcome.ExtendFeatures) != 1 || outcome.ExtendFeatures[0] != "new_feature" {
		t.Errorf("features = %v", outcome.ExtendFeatures)
	}
}

// sequencedClient routes responses by matching the system prompt to the
// agent, so concurrent QA/red-team calls cannot race on the script order.
type sequencedClient struct {
	engineerResponses []string
	qaResponses       []string
	securityResponses []string
	engineerCalls     int
	qaCalls           int
	securityCalls     int
}

func (c *sequencedClient) Chat(_ context.Context, req llm.Request) (*llm.Response, error) {
	pick := func(responses []string, calls *int) (*llm.Response, error) {
		if *calls >= len(responses) {
			return nil, errors.New("script exhausted")
		}
		resp := responses[*calls]
		*calls++
		return &llm.Response{Content: resp}, nil
	}
	switch {
	case strings.Contains(req.SystemPrompt, "QA Automation Engineer"):
		return pick(c.qaResponses, &c.qaCalls)
	case strings.Contains(req.SystemPrompt, "Offensive Security Researcher"):
		return pick(c.securityResponses, &c.securityCalls)
	default:
		return pick(c.engineerResponses, &c.engineerCalls)
	}
}

func TestFixLoopSucceedsOnSecondIteration(t *testing.T) {
	client := &sequencedClient{
		engineerResponses: []string{engineerResp, engineerFixResp},
		qaResponses:       []string{qaFail, qaPass},
		securityResponses: []string{securityPass, securityPass},
	}
	o := NewOrchestrator(client, Options{})

	outcome := o.RunFromSpec(context.Background(), makeRefinedSpec())
	if outcome.Status != OutcomeBuilt {
		t.Fatalf("status = %s, err = %v", outcome.Status, outcome.Err)
	}
	if outcome.Artifact.BuildIterations != 2 {
		t.Errorf("iterations = %d, want 2", outcome.Artifact.BuildIterations)
	}
	if !strings.Contains(outcome.Artifact.BuildOutput.SourceCode, "v2 fixed") {
		t.Errorf("final source = %q", outcome.Artifact.BuildOutput.SourceCode)
	}
}

func TestCircuitBreakerFailMode(t *testing.T) {
	client := &sequencedClient{
		engineerResponses: []string{engineerResp, engineerResp, engineerResp},
		qaResponses:       []string{qaFail, qaFail, qaFail},
		securityResponses: []string{securityFail, securityFail, securityFail},
	}
	o := NewOrchestrator(client, Options{OnBreaker: BreakerFail})

	outcome := o.RunFromSpec(context.Background(), makeRefinedSpec())
	if outcome.Status != OutcomeFailed {
		t.Fatalf("status = %s", outcome.Status)
	}
	var cbErr *CircuitBreakerError
	if !errors.As(outcome.Err, &cbErr) {
		t.Fatalf("err = %v", outcome.Err)
	}
	if cbErr.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", cbErr.Attempts)
	}
	if cbErr.Summary == "" {
		t.Error("empty ticket summary")
	}
}

func TestCircuitBreakerProceedModeEscalates(t *testing.T) {
	client := &sequencedClient{
		engineerResponses: []string{engineerResp, engineerResp, engineerResp},
		qaResponses:       []string{qaFail, qaFail, qaFail},
		securityResponses: []string{securityPass, securityPass, securityPass},
	}
	o := NewOrchestrator(client, Options{OnBreaker: BreakerProceed})

	outcome := o.RunFromSpec(context.Background(), makeRefinedSpec())
	if outcome.Status != OutcomeBuilt {
		t.Fatalf("status = %s, err = %v", outcome.Status, outcome.Err)
	}
	artifact := outcome.Artifact
	if !artifact.Escalated {
		t.Fatal("expected escalated artifact")
	}
	if len(artifact.EscalatedTickets) == 0 {
		t.Fatal("expected unresolved blocking tickets")
	}
	// Invariant: success implies no blocking tickets OR escalated.
	blocking, _ := build.Partition(artifact.EscalatedTickets)
	if len(blocking) == 0 {
		t.Error("escalated tickets should be the blocking set")
	}
}

type fixedApprover struct {
	approve bool
	err     error
}

func (a fixedApprover) Approve(context.Context, string, string) (bool, error) {
	return a.approve, a.err
}

func TestCircuitBreakerAskModeDegradesToProceed(t *testing.T) {
	client := &sequencedClient{
		engineerResponses: []string{engineerResp, engineerResp, engineerResp},
		qaResponses:       []string{qaFail, qaFail, qaFail},
		securityResponses: []string{securityPass, securityPass, securityPass},
	}
	// No approver configured: ask degrades to proceed with a warning.
	o := NewOrchestrator(client, Options{OnBreaker: BreakerAsk})

	outcome := o.RunFromSpec(context.Background(), makeRefinedSpec())
	if outcome.Status != OutcomeBuilt || !outcome.Artifact.Escalated {
		t.Fatalf("status = %s, escalated = %v", outcome.Status, outcome.Artifact != nil && outcome.Artifact.Escalated)
	}
}

func TestCircuitBreakerAskModeHonorsDenial(t *testing.T) {
	client := &sequencedClient{
		engineerResponses: []string{engineerResp, engineerResp, engineerResp},
		qaResponses:       []string{qaFail, qaFail, qaFail},
		securityResponses: []string{securityPass, securityPass, securityPass},
	}
	o := NewOrchestrator(client, Options{OnBreaker: BreakerAsk, Approver: fixedApprover{approve: false}})

	outcome := o.RunFromSpec(context.Background(), makeRefinedSpec())
	if outcome.Status != OutcomeFailed {
		t.Fatalf("status = %s", outcome.Status)
	}
}

func TestAdvisoryTicketsDoNotBlock(t *testing.T) {
	qaAdvisory := `{
		"passed": false,
		"tests_run": 5,
		"tests_passed": 4,
		"tests_failed": 1,
		"bug_tickets": [{
			"target": "engineer",
			"ticket_type": "functional_defect",
			"severity": "low",
			"expected": "prettier output",
			"actual": "plain output",
			"remediation_directive": "cosmetic"
		}]
	}`
	client := &sequencedClient{
		engineerResponses: []string{engineerResp},
		qaResponses:       []string{qaAdvisory},
		securityResponses: []string{securityPass},
	}
	o := NewOrchestrator(client, Options{})

	outcome := o.RunFromSpec(context.Background(), makeRefinedSpec())
	if outcome.Status != OutcomeBuilt {
		t.Fatalf("status = %s, err = %v", outcome.Status, outcome.Err)
	}
	if outcome.Artifact.BuildIterations != 1 {
		t.Errorf("iterations = %d, want 1", outcome.Artifact.BuildIterations)
	}
}

func TestArchitectFailureFallsBackToPassthrough(t *testing.T) {
	// Architect prose response fails to parse; the pipeline continues
	// with the unrefined spec and still builds.
	client := &sequencedClient{
		engineerResponses: []string{"not json at all", engineerResp},
		qaResponses:       []string{qaPass},
		securityResponses: []string{securityPass},
	}
	o := NewOrchestrator(client, Options{})

	outcome := o.Run(context.Background(), makeRequest())
	if outcome.Status != OutcomeBuilt {
		t.Fatalf("status = %s, err = %v", outcome.Status, outcome.Err)
	}
	if outcome.Artifact.RefinedSpec.DesignNotes != "Unrefined spec (Architect unavailable)" {
		t.Errorf("design notes = %q", outcome.Artifact.RefinedSpec.DesignNotes)
	}
}

func TestMetricsAccumulate(t *testing.T) {
	client := llm.NewStub(architectResp, engineerResp, qaPass, securityPass)
	o := NewOrchestrator(client, Options{})

	o.Run(context.Background(), makeRequest())
	snap := o.Metrics().Snapshot()
	if snap.BuildsStarted != 1 || snap.BuildsCompleted != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
