package gate

import (
	"context"
	"log/slog"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

// EvaluatorVerdict is the structured response from an LLM evaluation.
type EvaluatorVerdict struct {
	Decision  string `json:"decision"` // "allow" | "deny" | "ask"
	Rationale string `json:"rationale"`
}

// Evaluator produces a structured allow/deny/ask verdict for an
// ambiguous request. The in-tree implementations are the LLM-backed
// evaluator and a stub that always asks.
type Evaluator interface {
	Evaluate(ctx context.Context, input spec.GateInput) (EvaluatorVerdict, error)
}

// StubEvaluator always returns ask, deferring to HITL.
type StubEvaluator struct{}

func (StubEvaluator) Evaluate(context.Context, spec.GateInput) (EvaluatorVerdict, error) {
	return EvaluatorVerdict{
		Decision:  "ask",
		Rationale: "LLM evaluation not configured, deferring to human",
	}, nil
}

// LlmEvaluation is the most expensive automated layer, reached only when
// the cheap layers pass through. An evaluator error passes through to
// HITL rather than blocking.
type LlmEvaluation struct {
	evaluator Evaluator
}

// NewLlmEvaluation creates the layer over the given evaluator.
func NewLlmEvaluation(evaluator Evaluator) *LlmEvaluation {
	return &LlmEvaluation{evaluator: evaluator}
}

func (l *LlmEvaluation) Name() decision.Layer { return decision.LayerLlmEvaluation }

func (l *LlmEvaluation) Evaluate(ctx context.Context, input spec.GateInput) (*decision.Decision, error) {
	verdict, err := l.evaluator.Evaluate(ctx, input)
	if err != nil {
		slog.Warn("llm evaluation failed, passing through", "error", err)
		return nil, nil
	}

	slog.Info("llm evaluation complete", "decision", verdict.Decision, "rationale", verdict.Rationale)

	var d decision.Decision
	switch verdict.Decision {
	case "allow":
		d = decision.Allow()
	case "deny":
		d = decision.Deny(verdict.Rationale)
	case "ask":
		d = decision.Ask("LLM evaluation requires human input", verdict.Rationale)
	default:
		// An unrecognized verdict is treated like an evaluator failure.
		slog.Warn("llm evaluation returned unknown verdict, passing through", "verdict", verdict.Decision)
		return nil, nil
	}
	return &d, nil
}
