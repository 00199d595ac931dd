package gate

import (
	"context"
	"log/slog"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

// CreationLayers holds the creation gate's cascade in declared order.
type CreationLayers struct {
	Policy   *PolicyRules
	Cache    *DecisionCache
	Registry *RegistryLookup
	CliCheck *CliCheck
	Llm      *LlmEvaluation
	Hitl     *Hitl
}

// ExecutionLayers holds the execution gate's cascade in declared order.
type ExecutionLayers struct {
	Policy *PolicyRules
	Cache  *DecisionCache
	Llm    *LlmEvaluation
	Hitl   *Hitl
}

// Engine orchestrates both gates. Each evaluation walks the gate's
// layers in order, short-circuiting at the first decision; terminal
// verdicts are written back into the gate's cache before returning.
type Engine struct {
	creation  CreationLayers
	execution ExecutionLayers

	// policyOnly is the bootstrap mode: the creation gate runs policy
	// rules and, on pass-through, allows directly — bypassing LLM and
	// HITL. Normal deployments run the full cascade.
	policyOnly bool
}

// NewEngine assembles an engine from explicit layer sets.
func NewEngine(creation CreationLayers, execution ExecutionLayers) *Engine {
	return &Engine{creation: creation, execution: execution}
}

// NewDefaultEngine assembles an engine with default policy rules, fresh
// caches, the stub registry client, the default CLI table, the stub LLM
// evaluator, and no HITL responder.
func NewDefaultEngine() (*Engine, error) {
	creationCache, err := NewDecisionCache(4096)
	if err != nil {
		return nil, err
	}
	executionCache, err := NewDecisionCache(4096)
	if err != nil {
		return nil, err
	}
	return NewEngine(
		CreationLayers{
			Policy:   DefaultPolicyRules(),
			Cache:    creationCache,
			Registry: NewRegistryLookup(nil, nil),
			CliCheck: DefaultCliCheck(),
			Llm:      NewLlmEvaluation(StubEvaluator{}),
			Hitl:     NewHitl(nil),
		},
		ExecutionLayers{
			Policy: DefaultPolicyRules(),
			Cache:  executionCache,
			Llm:    NewLlmEvaluation(StubEvaluator{}),
			Hitl:   NewHitl(nil),
		},
	), nil
}

// SetPolicyOnly toggles the bootstrap mode on the creation gate.
func (e *Engine) SetPolicyOnly(on bool) {
	e.policyOnly = on
}

// CreationCache exposes the creation gate's cache for invalidation.
func (e *Engine) CreationCache() *DecisionCache { return e.creation.Cache }

// ExecutionCache exposes the execution gate's cache for invalidation.
func (e *Engine) ExecutionCache() *DecisionCache { return e.execution.Cache }

// Evaluate runs the input through the selected gate and always returns a
// layered decision.
func (e *Engine) Evaluate(ctx context.Context, gate decision.GateKind, input spec.GateInput) decision.Layered {
	switch gate {
	case decision.GateCreation:
		if e.policyOnly {
			return e.evaluatePolicyOnly(ctx, input)
		}
		layers := []Layer{
			e.creation.Policy,
			e.creation.Cache,
			e.creation.Registry,
			e.creation.CliCheck,
			e.creation.Llm,
			e.creation.Hitl,
		}
		return e.runCascade(ctx, gate, layers, e.creation.Cache, input)
	default:
		layers := []Layer{
			e.execution.Policy,
			e.execution.Cache,
			e.execution.Llm,
			e.execution.Hitl,
		}
		return e.runCascade(ctx, gate, layers, e.execution.Cache, input)
	}
}

// evaluatePolicyOnly is the bootstrap path: policy rules decide, and a
// pass-through becomes Allow without consulting LLM or HITL.
func (e *Engine) evaluatePolicyOnly(ctx context.Context, input spec.GateInput) decision.Layered {
	d, err := e.creation.Policy.Evaluate(ctx, input)
	if err != nil {
		slog.Error("policy layer error in policy-only mode", "error", err)
	}
	if d == nil {
		allow := decision.Allow()
		d = &allow
	}
	result := decision.Layered{Decision: *d, Layer: decision.LayerPolicyRules}
	if d.Terminal() {
		e.creation.Cache.Store(input.Fingerprint(), *d)
	}
	return result
}

func (e *Engine) runCascade(ctx context.Context, gate decision.GateKind, layers []Layer, cache *DecisionCache, input spec.GateInput) decision.Layered {
	for _, layer := range layers {
		slog.Debug("evaluating layer", "gate", gate, "layer", layer.Name())

		d, err := layer.Evaluate(ctx, input)
		if err != nil {
			// Fail-open within the cascade: log and fall through to the
			// next layer. HITL at the tail guarantees a verdict.
			slog.Error("layer error, skipping", "gate", gate, "layer", layer.Name(), "error", err)
			continue
		}
		if d == nil {
			slog.Debug("layer passed through", "gate", gate, "layer", layer.Name())
			continue
		}

		slog.Info("layer produced decision",
			"gate", gate, "layer", layer.Name(), "decision", d.Kind)

		if d.Terminal() {
			cache.Store(input.Fingerprint(), *d)
		}
		return decision.Layered{Decision: *d, Layer: layer.Name()}
	}

	// Unreachable in practice: HITL always decides. Deny defensively.
	slog.Error("cascade exhausted without a decision, denying", "gate", gate)
	return decision.Layered{
		Decision:  decision.Deny("All cascade layers exhausted without producing a decision"),
		Layer:     decision.LayerHitl,
		Rationale: "Fallback deny: no layer produced a decision",
	}
}
