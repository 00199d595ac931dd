package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

// DecisionCache is the per-gate cache layer: fingerprint → terminal
// decision. Hits short-circuit the cascade; the engine populates the
// cache whenever a later layer reaches a terminal verdict. Entries do
// not expire; invalidation is the caller's responsibility.
type DecisionCache struct {
	c *ristretto.Cache[string, decision.Decision]
}

// NewDecisionCache creates a ristretto-backed decision cache holding up
// to maxEntries verdicts.
func NewDecisionCache(maxEntries int64) (*DecisionCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, decision.Decision]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("decision cache: %w", err)
	}
	return &DecisionCache{c: c}, nil
}

func (dc *DecisionCache) Name() decision.Layer { return decision.LayerCache }

func (dc *DecisionCache) Evaluate(_ context.Context, input spec.GateInput) (*decision.Decision, error) {
	fp := input.Fingerprint()
	if fp == "" {
		return nil, nil
	}
	if cached, ok := dc.c.Get(fp); ok {
		slog.Info("decision cache hit", "fingerprint", fp, "decision", cached.Kind)
		return &cached, nil
	}
	return nil, nil
}

// Store records a terminal decision under the given fingerprint. The
// write is synchronous: a subsequent Evaluate with the same fingerprint
// observes it.
func (dc *DecisionCache) Store(fingerprint string, d decision.Decision) {
	if !d.Terminal() {
		return
	}
	dc.c.Set(fingerprint, d, 1)
	dc.c.Wait()
}

// Invalidate removes the cached decision for a fingerprint.
func (dc *DecisionCache) Invalidate(fingerprint string) {
	dc.c.Del(fingerprint)
}

// Close releases the cache's resources.
func (dc *DecisionCache) Close() {
	dc.c.Close()
}
