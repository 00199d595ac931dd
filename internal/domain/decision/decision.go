// Package decision defines the verdict model shared by both gates: the
// tagged Decision sum, defer targets, and the layer attribution attached
// to every cascade outcome.
package decision

import "encoding/json"

// Kind discriminates the Decision variants.
type Kind string

const (
	KindAllow Kind = "allow"
	KindDeny  Kind = "deny"
	KindDefer Kind = "defer"
	KindAsk   Kind = "ask"
)

// Decision is the tri-state-plus-defer outcome of a gate evaluation.
// Only Allow and Deny are terminal (eligible for caching).
type Decision struct {
	Kind    Kind         `json:"kind"`
	Reason  string       `json:"reason,omitempty"`  // Deny
	Target  *DeferTarget `json:"target,omitempty"`  // Defer
	Prompt  string       `json:"prompt,omitempty"`  // Ask
	Context string       `json:"context,omitempty"` // Ask
}

// Allow approves the request.
func Allow() Decision { return Decision{Kind: KindAllow} }

// Deny rejects the request with a reason.
func Deny(reason string) Decision { return Decision{Kind: KindDeny, Reason: reason} }

// Defer redirects the request to an existing capability.
func Defer(target DeferTarget) Decision { return Decision{Kind: KindDefer, Target: &target} }

// Ask escalates the request for human input.
func Ask(prompt, context string) Decision {
	return Decision{Kind: KindAsk, Prompt: prompt, Context: context}
}

// Terminal reports whether the decision is eligible for caching.
func (d Decision) Terminal() bool {
	return d.Kind == KindAllow || d.Kind == KindDeny
}

// TargetKind discriminates what a Defer decision redirects to.
type TargetKind string

const (
	TargetRegistryTool TargetKind = "registry_tool"
	TargetCliUtility   TargetKind = "cli_utility"
	TargetExtendTool   TargetKind = "extend_tool"
)

// DeferTarget names the existing capability a Defer decision points at.
type DeferTarget struct {
	Kind TargetKind `json:"kind"`

	// RegistryTool
	Registry string `json:"registry,omitempty"`
	Version  string `json:"version,omitempty"`

	// RegistryTool, CliUtility, ExtendTool
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// ExtendTool
	SuggestedFeatures []string `json:"suggested_features,omitempty"`
}

// Layer identifies which cascade layer produced a decision.
type Layer string

const (
	LayerPolicyRules    Layer = "policy_rules"
	LayerCache          Layer = "cache"
	LayerRegistryLookup Layer = "registry_lookup"
	LayerCliCheck       Layer = "cli_check"
	LayerLlmEvaluation  Layer = "llm_evaluation"
	LayerHitl           Layer = "hitl"
)

// Layered pairs a decision with the layer that produced it.
type Layered struct {
	Decision  Decision `json:"decision"`
	Layer     Layer    `json:"layer"`
	Rationale string   `json:"rationale,omitempty"`
}

// GateKind selects which cascade evaluates a request.
type GateKind string

const (
	// GateCreation answers "should this tool be built?".
	GateCreation GateKind = "creation"
	// GateExecution answers "should this invocation proceed?".
	GateExecution GateKind = "execution"
)

// StatusJSON renders the decision as the user-visible status object:
// {"status": "allowed"|"denied"|"deferred"|"ask", ...}.
func (d Decision) StatusJSON() []byte {
	var body any
	switch d.Kind {
	case KindAllow:
		body = map[string]any{"status": "allowed", "message": "Request approved"}
	case KindDeny:
		body = map[string]any{"status": "denied", "reason": d.Reason}
	case KindDefer:
		body = map[string]any{"status": "deferred", "target": d.Target}
	case KindAsk:
		body = map[string]any{"status": "ask", "prompt": d.Prompt, "context": d.Context}
	default:
		body = map[string]any{"status": string(d.Kind)}
	}
	out, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"status":"error"}`)
	}
	return out
}
