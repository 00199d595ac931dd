package gate

import (
	"context"
	"testing"

	"github.com/epiphytic/girt/internal/domain/decision"
)

func newCache(t *testing.T) *DecisionCache {
	t.Helper()
	c, err := NewDecisionCache(128)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCacheMissPassesThrough(t *testing.T) {
	c := newCache(t)

	d, err := c.Evaluate(context.Background(), creationInput("unknown_tool", "test"))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected miss, got %v", d)
	}
}

func TestCacheHitReturnsStoredDecision(t *testing.T) {
	c := newCache(t)
	in := creationInput("cached_tool", "test")

	c.Store(in.Fingerprint(), decision.Deny("previously denied"))

	d, err := c.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindDeny || d.Reason != "previously denied" {
		t.Fatalf("got %v", d)
	}
}

func TestCacheRejectsNonTerminalDecisions(t *testing.T) {
	c := newCache(t)
	in := creationInput("asked_tool", "test")

	c.Store(in.Fingerprint(), decision.Ask("q", "ctx"))

	d, err := c.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("non-terminal decision was cached: %v", d)
	}
}

func TestCacheInvalidationClearsEntry(t *testing.T) {
	c := newCache(t)
	in := creationInput("invalidated_tool", "test")

	c.Store(in.Fingerprint(), decision.Allow())
	c.Invalidate(in.Fingerprint())

	d, err := c.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected miss after invalidation, got %v", d)
	}
}
