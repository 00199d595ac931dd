// Package build defines the data model of the build pipeline: refined
// specifications, implementation plans, build outputs, bug tickets, stage
// timings, and the final artifact.
package build

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/epiphytic/girt/internal/domain/spec"
)

// SpecAction is the architect's verdict on a capability request.
type SpecAction string

const (
	ActionBuild           SpecAction = "build"
	ActionRecommendExtend SpecAction = "recommend_extend"
)

// ComplexityHint is the architect's explicit complexity signal. High
// forces the planner stage regardless of structural triggers.
type ComplexityHint string

const (
	ComplexityLow  ComplexityHint = "low"
	ComplexityHigh ComplexityHint = "high"
)

// RefinedSpec is the architect's output: the original specification made
// concrete, plus design notes and an action tag. Lives only within one
// pipeline run.
type RefinedSpec struct {
	Action         SpecAction          `json:"action"`
	Spec           spec.CapabilitySpec `json:"spec"`
	DesignNotes    string              `json:"design_notes"`
	ExtendTarget   string              `json:"extend_target,omitempty"`
	ExtendFeatures []string            `json:"extend_features,omitempty"`
	ComplexityHint ComplexityHint      `json:"complexity_hint,omitempty"`
}

// ImplementationPlan is the planner's structured brief for the engineer.
// Produced only when the refined spec meets complexity triggers.
type ImplementationPlan struct {
	// All input validation that must occur before any external calls,
	// with exact constraints (max lengths, allowed char sets).
	ValidationLayer string `json:"validation_layer"`
	// Threat model per input field and the required mitigations.
	SecurityNotes string `json:"security_notes"`
	// Step-by-step external call sequence with error handling.
	APISequence string `json:"api_sequence"`
	// Edge cases and the required handling for each.
	EdgeCases string `json:"edge_cases"`
	// Target-runtime pitfalls: what works in WASM+WASI and what to avoid.
	ImplementationGuidance string `json:"implementation_guidance"`
}

// TargetLanguage tags the engineer's build target.
type TargetLanguage string

const (
	LanguageGo             TargetLanguage = "go"
	LanguageRust           TargetLanguage = "rust"
	LanguageAssemblyScript TargetLanguage = "assemblyscript"
)

// SourceExt returns the source filename extension for the language.
func (l TargetLanguage) SourceExt() string {
	switch l {
	case LanguageRust:
		return "rs"
	case LanguageAssemblyScript:
		return "ts"
	default:
		return "go"
	}
}

// BuildOutput is the engineer's product: source text, interface
// definition, capability policy, and the language tag.
type BuildOutput struct {
	SourceCode    string `json:"source_code"`
	WitDefinition string `json:"wit_definition"`
	PolicyYAML    string `json:"policy_yaml"`
	Language      string `json:"language"`
}

// TicketKind discriminates bug tickets.
type TicketKind string

const (
	TicketFunctionalDefect      TicketKind = "functional_defect"
	TicketSecurityVulnerability TicketKind = "security_vulnerability"
)

// Severity is the bug ticket severity tier. Critical and high block the
// build and drive the fix loop; medium and low are advisory.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// BugTicket is a defect report from QA or red-team back to the engineer.
type BugTicket struct {
	Target               string          `json:"target"`
	Kind                 TicketKind      `json:"ticket_type"`
	Severity             Severity        `json:"severity,omitempty"`
	Input                json.RawMessage `json:"input,omitempty"`
	Expected             string          `json:"expected"`
	Actual               string          `json:"actual"`
	RemediationDirective string          `json:"remediation_directive"`
}

// Blocking reports whether the ticket triggers the fix loop. An absent
// severity counts as high, the safe default.
func (t BugTicket) Blocking() bool {
	switch t.Severity {
	case SeverityCritical, SeverityHigh, "":
		return true
	default:
		return false
	}
}

// Partition splits tickets into blocking and advisory sets, preserving
// order within each.
func Partition(tickets []BugTicket) (blocking, advisory []BugTicket) {
	for _, t := range tickets {
		if t.Blocking() {
			blocking = append(blocking, t)
		} else {
			advisory = append(advisory, t)
		}
	}
	return blocking, advisory
}

// TicketSummary renders a compact one-line summary of the given tickets,
// used in circuit-breaker errors.
func TicketSummary(tickets []BugTicket) string {
	out := ""
	for i, t := range tickets {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("#%d: [%s/%s] expected: %s, actual: %s",
			i+1, t.Kind, t.severityOrDefault(), t.Expected, t.Actual)
	}
	return out
}

func (t BugTicket) severityOrDefault() Severity {
	if t.Severity == "" {
		return SeverityHigh
	}
	return t.Severity
}

// QaResult is the QA agent's verdict.
type QaResult struct {
	Passed      bool        `json:"passed"`
	TestsRun    int         `json:"tests_run"`
	TestsPassed int         `json:"tests_passed"`
	TestsFailed int         `json:"tests_failed"`
	BugTickets  []BugTicket `json:"bug_tickets"`
}

// SecurityResult is the red-team agent's verdict.
type SecurityResult struct {
	Passed            bool        `json:"passed"`
	ExploitsAttempted int         `json:"exploits_attempted"`
	ExploitsSucceeded int         `json:"exploits_succeeded"`
	BugTickets        []BugTicket `json:"bug_tickets"`
}

// TokenUsage counts tokens consumed by a single LLM call (or a sum of calls).
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// IterationTimings is one engineer→QA→red-team cycle's timing and token
// breakdown.
type IterationTimings struct {
	Iteration      int        `json:"iteration"`
	EngineerMS     int64      `json:"engineer_ms"`
	EngineerTokens TokenUsage `json:"engineer_tokens"`
	QaMS           int64      `json:"qa_ms"`
	QaTokens       TokenUsage `json:"qa_tokens"`
	RedTeamMS      int64      `json:"red_team_ms"`
	RedTeamTokens  TokenUsage `json:"red_team_tokens"`
}

// StageTimings is the full per-stage timing and token breakdown for one
// pipeline run.
type StageTimings struct {
	ArchitectMS     int64              `json:"architect_ms"`
	ArchitectTokens TokenUsage         `json:"architect_tokens"`
	PlannerMS       int64              `json:"planner_ms,omitempty"`
	PlannerTokens   *TokenUsage        `json:"planner_tokens,omitempty"`
	Iterations      []IterationTimings `json:"iterations"`
	TotalMS         int64              `json:"total_ms"`
}

// TotalTokens sums input and output tokens across every stage.
func (s *StageTimings) TotalTokens() TokenUsage {
	total := s.ArchitectTokens
	if s.PlannerTokens != nil {
		total.Add(*s.PlannerTokens)
	}
	for _, it := range s.Iterations {
		total.Add(it.EngineerTokens)
		total.Add(it.QaTokens)
		total.Add(it.RedTeamTokens)
	}
	return total
}

// Artifact is the pipeline's final output: immutable and persisted.
type Artifact struct {
	Spec            spec.CapabilitySpec `json:"spec"`
	RefinedSpec     RefinedSpec         `json:"refined_spec"`
	BuildOutput     BuildOutput         `json:"build_output"`
	QaResult        QaResult            `json:"qa_result"`
	SecurityResult  SecurityResult      `json:"security_result"`
	BuildIterations int                 `json:"build_iterations"`
	Timings         StageTimings        `json:"timings"`

	// Escalated is true when the pipeline hit the iteration limit and
	// shipped anyway (circuit-breaker mode proceed or ask). The unresolved
	// blocking tickets are recorded in EscalatedTickets.
	Escalated        bool        `json:"escalated,omitempty"`
	EscalatedTickets []BugTicket `json:"escalated_tickets,omitempty"`
}

// RequestSource names where a capability request came from.
type RequestSource string

const (
	SourceOperator RequestSource = "operator"
	SourceCLI      RequestSource = "cli"
	SourceHook     RequestSource = "hook"
)

// RequestStatus is the queue state of a capability request. Transitions
// run pending → in_progress → completed | failed; Requeue returns an
// in_progress request to pending for another attempt.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// Priority orders capability requests within the queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// CapabilityRequest is a queued build request.
type CapabilityRequest struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Source    RequestSource       `json:"source"`
	Spec      spec.CapabilitySpec `json:"spec"`
	Status    RequestStatus       `json:"status"`
	Priority  Priority            `json:"priority"`
	Attempts  int                 `json:"attempts"`
}

// NewCapabilityRequest creates a pending request with a fresh id.
func NewCapabilityRequest(s spec.CapabilitySpec, source RequestSource) CapabilityRequest {
	return CapabilityRequest{
		ID:        "req_" + uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		Spec:      s,
		Status:    StatusPending,
		Priority:  PriorityNormal,
	}
}
