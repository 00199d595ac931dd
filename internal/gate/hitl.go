package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

// ResponderDecision is a human's answer to an approval prompt.
type ResponderDecision struct {
	Approved bool
	Reason   string
}

// Responder is the transport that puts a question in front of a human
// (Discord, CLI prompt). An error means no responder is available; the
// layer then returns Ask so the caller knows human input is required.
type Responder interface {
	Prompt(ctx context.Context, input spec.GateInput, summary string) (ResponderDecision, error)
}

// DeferringResponder always fails, producing an Ask decision. Used when
// no approval transport is configured.
type DeferringResponder struct{}

func (DeferringResponder) Prompt(context.Context, spec.GateInput, string) (ResponderDecision, error) {
	return ResponderDecision{}, fmt.Errorf("no HITL responder configured")
}

// Hitl is the final cascade layer. It always produces a decision: the
// responder's allow/deny when one answers, or Ask when none is available.
type Hitl struct {
	responder Responder
}

// NewHitl creates the layer over the given responder.
func NewHitl(responder Responder) *Hitl {
	if responder == nil {
		responder = DeferringResponder{}
	}
	return &Hitl{responder: responder}
}

func (h *Hitl) Name() decision.Layer { return decision.LayerHitl }

func (h *Hitl) Evaluate(ctx context.Context, input spec.GateInput) (*decision.Decision, error) {
	var prompt string
	switch {
	case input.Creation != nil:
		prompt = fmt.Sprintf("Capability request %q: %s", input.Creation.Name, input.Creation.Description)
	case input.Execution != nil:
		prompt = fmt.Sprintf("Tool invocation %q", input.Execution.ToolName)
	}

	resp, err := h.responder.Prompt(ctx, input, prompt)
	if err != nil {
		slog.Warn("hitl responder unavailable", "error", err)
		d := decision.Ask(prompt, fmt.Sprintf("HITL required: %v", err))
		return &d, nil
	}

	if resp.Approved {
		slog.Info("hitl: user approved")
		d := decision.Allow()
		return &d, nil
	}

	reason := resp.Reason
	if reason == "" {
		reason = "denied by human reviewer"
	}
	slog.Info("hitl: user denied", "reason", reason)
	d := decision.Deny(reason)
	return &d, nil
}
