// Package secrets resolves credentials for built tools and for the
// Anthropic provider. Raw credential values never enter a tool sandbox;
// no code in this module injects them into a tool's outbound requests.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound indicates no credential is available for a service.
var ErrSecretNotFound = errors.New("secrets: not found")

// Value holds a resolved credential. Expose returns the raw value; call
// it only at the point of injection.
type Value struct {
	value string
}

// NewValue wraps a raw credential.
func NewValue(v string) Value { return Value{value: v} }

// Expose returns the raw credential value.
func (v Value) Expose() string { return v.value }

// String masks the credential in logs and format verbs.
func (v Value) String() string { return "***" }

// Store looks up credentials by service name without exposing them to
// tool sandboxes.
type Store interface {
	// Lookup resolves a credential for the named service.
	Lookup(ctx context.Context, service string) (Value, error)
	// Services lists available service names (not their values).
	Services(ctx context.Context) ([]string, error)
	// Backend names the store for logging.
	Backend() string
}

// EnvStore resolves secrets from environment variables. Service names
// map by convention: "github" → GITHUB_TOKEN, falling back to
// <SERVICE>_API_KEY. Explicit mappings override the convention.
type EnvStore struct {
	mappings map[string]string
}

// NewEnvStore creates an EnvStore with the default mappings.
func NewEnvStore() *EnvStore {
	return &EnvStore{mappings: map[string]string{
		"github":    "GITHUB_TOKEN",
		"gitlab":    "GITLAB_TOKEN",
		"discord":   "DISCORD_BOT_TOKEN",
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}}
}

// WithMappings overlays custom service → env-var mappings.
func (s *EnvStore) WithMappings(mappings map[string]string) *EnvStore {
	for k, v := range mappings {
		s.mappings[k] = v
	}
	return s
}

func (s *EnvStore) Lookup(_ context.Context, service string) (Value, error) {
	candidates := make([]string, 0, 3)
	if mapped, ok := s.mappings[strings.ToLower(service)]; ok {
		candidates = append(candidates, mapped)
	}
	upper := strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
	candidates = append(candidates, upper+"_TOKEN", upper+"_API_KEY")

	for _, env := range candidates {
		if v := os.Getenv(env); v != "" {
			return NewValue(v), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %s", ErrSecretNotFound, service)
}

func (s *EnvStore) Services(context.Context) ([]string, error) {
	out := make([]string, 0, len(s.mappings))
	for service, env := range s.mappings {
		if os.Getenv(env) != "" {
			out = append(out, service)
		}
	}
	return out, nil
}

func (s *EnvStore) Backend() string { return "env" }
