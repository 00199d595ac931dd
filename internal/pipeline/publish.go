package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/store"
)

// Publisher writes finished artifacts into the capability store and,
// when configured, pushes them to a remote registry.
type Publisher struct {
	store *store.Store
}

// PublishResult reports where an artifact landed.
type PublishResult struct {
	ToolName        string
	LocalPath       string
	RemoteReference string
}

// NewPublisher creates a publisher over the given store.
func NewPublisher(s *store.Store) *Publisher {
	return &Publisher{store: s}
}

// Init prepares the underlying store.
func (p *Publisher) Init() error {
	return p.store.Init()
}

// Store exposes the underlying capability store for lookups.
func (p *Publisher) Store() *store.Store { return p.store }

// Publish stores an artifact locally.
func (p *Publisher) Publish(artifact *build.Artifact) (*PublishResult, error) {
	path, err := p.store.Save(artifact)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", artifact.Spec.Name, err)
	}
	slog.Info("artifact published", "tool", artifact.Spec.Name, "path", path)
	return &PublishResult{ToolName: artifact.Spec.Name, LocalPath: path}, nil
}

// PublishWithWasm stores an artifact locally together with its compiled
// binary.
func (p *Publisher) PublishWithWasm(artifact *build.Artifact, wasmPath string) (*PublishResult, error) {
	path, err := p.store.SaveWithWasm(artifact, wasmPath)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", artifact.Spec.Name, err)
	}
	slog.Info("artifact published with wasm", "tool", artifact.Spec.Name, "path", path)
	return &PublishResult{ToolName: artifact.Spec.Name, LocalPath: path}, nil
}

// PushRemote pushes a stored artifact to a remote registry and returns
// the remote reference.
func (p *Publisher) PushRemote(ctx context.Context, artifact *build.Artifact, registryURL, tag string) (string, error) {
	reference := fmt.Sprintf("%s/%s:%s", registryURL, artifact.Spec.Name, tag)
	ref, err := p.store.PushToRemote(ctx, artifact.Spec.Name, reference)
	if err != nil {
		return "", err
	}
	slog.Info("artifact pushed to remote registry", "tool", artifact.Spec.Name, "reference", ref)
	return ref, nil
}
