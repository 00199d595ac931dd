package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/epiphytic/girt/internal/domain/spec"
	"github.com/epiphytic/girt/internal/gate"
	"github.com/epiphytic/girt/internal/port/notifier"
)

// Approval drives human approvals over Discord: it posts the question
// through the webhook notifier and blocks until someone resolves the
// request (via ResolveApproval) or the deadline expires.
//
// The wait runs as an inner poll loop (each leg bounded well under a
// minute) inside an overall deadline, so a stuck transport never wedges
// a cascade evaluation.
type Approval struct {
	notifier *Notifier

	// pollInterval bounds one inner wait leg (default 55s).
	pollInterval time.Duration
	// overallTimeout bounds the whole wait (default 300s).
	overallTimeout time.Duration

	mu      sync.Mutex
	pending map[string]chan resolution
}

type resolution struct {
	approved bool
	reason   string
}

// NewApproval creates an approval manager over the given notifier.
func NewApproval(n *Notifier) *Approval {
	return &Approval{
		notifier:       n,
		pollInterval:   55 * time.Second,
		overallTimeout: 300 * time.Second,
	}
}

// SetTimeouts overrides the poll and overall timeouts.
func (a *Approval) SetTimeouts(poll, overall time.Duration) {
	if poll > 0 {
		a.pollInterval = poll
	}
	if overall > 0 {
		a.overallTimeout = overall
	}
}

// Prompt implements gate.Responder: it surfaces a gate question to
// Discord and waits for a human verdict.
func (a *Approval) Prompt(ctx context.Context, _ spec.GateInput, summary string) (gate.ResponderDecision, error) {
	approved, reason, err := a.request(ctx, "GIRT approval required", summary)
	if err != nil {
		return gate.ResponderDecision{}, err
	}
	return gate.ResponderDecision{Approved: approved, Reason: reason}, nil
}

// Approve implements the pipeline escalation hook.
func (a *Approval) Approve(ctx context.Context, question, detail string) (bool, error) {
	approved, _, err := a.request(ctx, question, detail)
	return approved, err
}

// ResolveApproval answers a pending request. Returns false when the id
// is unknown or already resolved. First response wins.
func (a *Approval) ResolveApproval(id string, approved bool, reason string) bool {
	a.mu.Lock()
	ch, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	a.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- resolution{approved: approved, reason: reason}:
		return true
	default:
		return false
	}
}

func (a *Approval) request(ctx context.Context, title, detail string) (bool, string, error) {
	id := uuid.NewString()

	ch := make(chan resolution, 1)
	a.mu.Lock()
	if a.pending == nil {
		a.pending = make(map[string]chan resolution)
	}
	a.pending[id] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
	}()

	err := a.notifier.Send(ctx, notifier.Notification{
		Title:   title,
		Message: fmt.Sprintf("%s\n\nApproval id: `%s`\nResolve from the operator console.", detail, id),
		Level:   "warning",
		Source:  "gate.ask",
	})
	if err != nil {
		return false, "", fmt.Errorf("approval notify: %w", err)
	}

	deadline := time.Now().Add(a.overallTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, "", fmt.Errorf("approval timed out after %s with no human response", a.overallTimeout)
		}
		leg := a.pollInterval
		if remaining < leg {
			leg = remaining
		}

		timer := time.NewTimer(leg)
		select {
		case res := <-ch:
			timer.Stop()
			slog.Info("approval resolved", "id", id, "approved", res.approved)
			return res.approved, res.reason, nil
		case <-ctx.Done():
			timer.Stop()
			return false, "", ctx.Err()
		case <-timer.C:
			slog.Debug("approval still pending", "id", id, "remaining", time.Until(deadline))
		}
	}
}
