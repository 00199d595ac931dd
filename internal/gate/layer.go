// Package gate implements the Hookwise decision cascade: two ordered
// stacks of layers (creation and execution) evaluated until one produces
// a verdict. Layers short-circuit with a decision, yield with nil, or
// fail — a failed layer is logged and skipped (fail-open within the
// cascade; the trailing HITL layer always decides).
package gate

import (
	"context"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

// Layer is one step of a cascade. Evaluate returns a decision to
// short-circuit, nil to pass through, or an error to be skipped.
type Layer interface {
	Name() decision.Layer
	Evaluate(ctx context.Context, input spec.GateInput) (*decision.Decision, error)
}
