package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
	"github.com/epiphytic/girt/internal/port/llm"
)

type fixedEvaluator struct {
	verdict EvaluatorVerdict
	err     error
}

func (e fixedEvaluator) Evaluate(context.Context, spec.GateInput) (EvaluatorVerdict, error) {
	return e.verdict, e.err
}

func TestStubEvaluatorAsks(t *testing.T) {
	layer := NewLlmEvaluation(StubEvaluator{})

	d, err := layer.Evaluate(context.Background(), creationInput("test", "test"))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindAsk {
		t.Fatalf("got %v", d)
	}
}

func TestAllowVerdictMapsToAllow(t *testing.T) {
	layer := NewLlmEvaluation(fixedEvaluator{verdict: EvaluatorVerdict{Decision: "allow", Rationale: "looks safe"}})

	d, err := layer.Evaluate(context.Background(), creationInput("test", "test"))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindAllow {
		t.Fatalf("got %v", d)
	}
}

func TestDenyVerdictCarriesRationale(t *testing.T) {
	layer := NewLlmEvaluation(fixedEvaluator{verdict: EvaluatorVerdict{Decision: "deny", Rationale: "exfiltration risk"}})

	d, err := layer.Evaluate(context.Background(), creationInput("test", "test"))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindDeny || d.Reason != "exfiltration risk" {
		t.Fatalf("got %v", d)
	}
}

func TestEvaluatorErrorPassesThrough(t *testing.T) {
	layer := NewLlmEvaluation(fixedEvaluator{err: errors.New("API call failed")})

	d, err := layer.Evaluate(context.Background(), creationInput("test", "test"))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected pass-through, got %v", d)
	}
}

func TestUnknownVerdictPassesThrough(t *testing.T) {
	layer := NewLlmEvaluation(fixedEvaluator{verdict: EvaluatorVerdict{Decision: "maybe"}})

	d, err := layer.Evaluate(context.Background(), creationInput("test", "test"))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected pass-through, got %v", d)
	}
}

func TestLlmGateEvaluatorParsesVerdict(t *testing.T) {
	client := llm.Constant(`{"decision": "allow", "rationale": "pure transform"}`)
	eval := NewLlmGateEvaluator(client)

	v, err := eval.Evaluate(context.Background(), creationInput("string_trim", "Trim whitespace"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != "allow" || v.Rationale != "pure transform" {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestLlmGateEvaluatorParsesFencedVerdict(t *testing.T) {
	client := llm.Constant("Here you go:\n```json\n{\"decision\": \"ask\", \"rationale\": \"ambiguous\"}\n```")
	eval := NewLlmGateEvaluator(client)

	v, err := eval.Evaluate(context.Background(), executionInput("fetch_url"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Decision != "ask" {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestLlmGateEvaluatorRejectsProse(t *testing.T) {
	client := llm.Constant("I think this is probably fine.")
	eval := NewLlmGateEvaluator(client)

	if _, err := eval.Evaluate(context.Background(), executionInput("fetch_url")); err == nil {
		t.Fatal("expected parse error")
	}
}
