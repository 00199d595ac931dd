package gate

import (
	"context"
	"log/slog"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

// RegistryConfig names one external tool registry to consult.
type RegistryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// RegistryToolMatch is a hit returned by a registry client.
type RegistryToolMatch struct {
	Registry    string
	ToolName    string
	Version     string
	Description string
}

// RegistryClient queries an external registry for an existing tool.
// Concrete backends (OCI, git) are collaborators; the in-tree client is
// a stub that never matches.
type RegistryClient interface {
	Lookup(ctx context.Context, registry RegistryConfig, name string) (*RegistryToolMatch, error)
}

// StubRegistryClient returns no matches. A real OCI-backed client is a
// separate engineering task.
type StubRegistryClient struct{}

func (StubRegistryClient) Lookup(context.Context, RegistryConfig, string) (*RegistryToolMatch, error) {
	return nil, nil
}

// RegistryLookup defers tool creation to an existing registry tool with
// the requested name. Applies to creation inputs only.
type RegistryLookup struct {
	registries []RegistryConfig
	client     RegistryClient
}

// NewRegistryLookup creates the layer over the given registries and client.
func NewRegistryLookup(registries []RegistryConfig, client RegistryClient) *RegistryLookup {
	if client == nil {
		client = StubRegistryClient{}
	}
	return &RegistryLookup{registries: registries, client: client}
}

func (r *RegistryLookup) Name() decision.Layer { return decision.LayerRegistryLookup }

func (r *RegistryLookup) Evaluate(ctx context.Context, input spec.GateInput) (*decision.Decision, error) {
	s := input.Creation
	if s == nil {
		return nil, nil
	}

	for _, reg := range r.registries {
		match, err := r.client.Lookup(ctx, reg, s.Name)
		if err != nil {
			// A broken registry must not block the cascade; report the
			// error so the engine logs and moves on.
			return nil, err
		}
		if match != nil {
			slog.Info("registry match: defer",
				"registry", match.Registry, "tool", match.ToolName, "version", match.Version)
			d := decision.Defer(decision.DeferTarget{
				Kind:     decision.TargetRegistryTool,
				Registry: match.Registry,
				Name:     match.ToolName,
				Version:  match.Version,
			})
			return &d, nil
		}
	}
	return nil, nil
}
