package build

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/epiphytic/girt/internal/domain/spec"
)

// PolicyDoc is the capability policy stored next to each built tool
// (policy.yaml). The runtime reads the resource section to bound each
// invocation; the permission section records what the gates approved.
type PolicyDoc struct {
	Version     string            `yaml:"version" json:"version"`
	Permissions PolicyPermissions `yaml:"permissions" json:"permissions"`
	Resources   PolicyResources   `yaml:"resources" json:"resources"`
}

// PolicyPermissions enumerates the capability grants for a tool.
type PolicyPermissions struct {
	Network     NetworkPermissions `yaml:"network" json:"network"`
	Storage     []string           `yaml:"storage" json:"storage"`
	Environment []string           `yaml:"environment" json:"environment"`
}

// NetworkPermissions lists the hosts a tool may reach.
type NetworkPermissions struct {
	Allow []NetworkHost `yaml:"allow" json:"allow"`
}

// NetworkHost names a single permitted host.
type NetworkHost struct {
	Host string `yaml:"host" json:"host"`
}

// PolicyResources bounds a single invocation.
type PolicyResources struct {
	MemoryMB         int   `yaml:"memory_mb" json:"memory_mb"`
	TimeoutSeconds   int   `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxResponseBytes int64 `yaml:"max_response_bytes" json:"max_response_bytes"`
}

// Hard ceilings for resource limits.
const (
	maxMemoryMB       = 1024
	maxTimeoutSeconds = 120
	maxResponseBytes  = 50 << 20
)

// Validate checks resource limits against the hard ceilings.
func (r PolicyResources) Validate() error {
	if r.MemoryMB > maxMemoryMB {
		return fmt.Errorf("memory_mb %d exceeds maximum %d", r.MemoryMB, maxMemoryMB)
	}
	if r.TimeoutSeconds > maxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds %d exceeds maximum %d", r.TimeoutSeconds, maxTimeoutSeconds)
	}
	if r.MaxResponseBytes > maxResponseBytes {
		return fmt.Errorf("max_response_bytes %d exceeds maximum %d", r.MaxResponseBytes, maxResponseBytes)
	}
	return nil
}

// ResourceTier is a predefined resource limit preset.
type ResourceTier string

const (
	// TierMinimal suits simple stateless transforms.
	TierMinimal ResourceTier = "minimal"
	// TierStandard suits typical tools.
	TierStandard ResourceTier = "standard"
	// TierExtended suits data-heavy or network-bound tools.
	TierExtended ResourceTier = "extended"
)

// Resources returns the concrete limits for the tier.
func (t ResourceTier) Resources() PolicyResources {
	switch t {
	case TierMinimal:
		return PolicyResources{MemoryMB: 64, TimeoutSeconds: 5, MaxResponseBytes: 1 << 20}
	case TierExtended:
		return PolicyResources{MemoryMB: 512, TimeoutSeconds: 60, MaxResponseBytes: 20 << 20}
	default:
		return PolicyResources{MemoryMB: 128, TimeoutSeconds: 15, MaxResponseBytes: 5 << 20}
	}
}

// InferTier picks a resource tier from a spec's constraints: network plus
// storage needs the extended tier, either alone the standard tier, and a
// pure transform the minimal tier.
func InferTier(s *spec.CapabilitySpec) ResourceTier {
	hasNetwork := len(s.Constraints.Network) > 0
	hasStorage := len(s.Constraints.Storage) > 0
	switch {
	case hasNetwork && hasStorage:
		return TierExtended
	case hasNetwork || hasStorage:
		return TierStandard
	default:
		return TierMinimal
	}
}

// PolicyFromSpec builds a policy document from a spec using the inferred
// resource tier.
func PolicyFromSpec(s *spec.CapabilitySpec) PolicyDoc {
	return PolicyFromSpecWithTier(s, InferTier(s))
}

// PolicyFromSpecWithTier builds a policy document from a spec with an
// explicit resource tier.
func PolicyFromSpecWithTier(s *spec.CapabilitySpec, tier ResourceTier) PolicyDoc {
	hosts := make([]NetworkHost, 0, len(s.Constraints.Network))
	for _, h := range s.Constraints.Network {
		hosts = append(hosts, NetworkHost{Host: h})
	}
	return PolicyDoc{
		Version: "1.0",
		Permissions: PolicyPermissions{
			Network:     NetworkPermissions{Allow: hosts},
			Storage:     append([]string(nil), s.Constraints.Storage...),
			Environment: []string{},
		},
		Resources: tier.Resources(),
	}
}

// YAML renders the policy document as policy.yaml content.
func (p PolicyDoc) YAML() (string, error) {
	out, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal policy: %w", err)
	}
	return string(out), nil
}

// ParsePolicyYAML parses policy.yaml content.
func ParsePolicyYAML(content string) (PolicyDoc, error) {
	var p PolicyDoc
	if err := yaml.Unmarshal([]byte(content), &p); err != nil {
		return PolicyDoc{}, fmt.Errorf("parse policy: %w", err)
	}
	return p, nil
}
