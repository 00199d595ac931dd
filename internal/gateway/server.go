// Package gateway exposes GIRT to agents over MCP: the synthetic
// request_capability tool plus every tool currently loaded in the
// runtime, with the decision gates in front of both.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/epiphytic/girt/internal/adapter/otel"
	"github.com/epiphytic/girt/internal/gate"
	"github.com/epiphytic/girt/internal/pipeline"
	"github.com/epiphytic/girt/internal/runtime"
)

const serverInstructions = "GIRT — Generative Isolated Runtime for Tools. " +
	"Call request_capability to have a new sandboxed tool designed, built, and vetted; " +
	"every tool call passes a policy gate before executing."

// Gateway wires the decision engine, build pipeline, capability store,
// and wasm runtime behind one MCP server.
type Gateway struct {
	engine       *gate.Engine
	orchestrator *pipeline.Orchestrator
	publisher    *pipeline.Publisher
	compiler     *pipeline.Compiler
	manager      *runtime.Manager

	mcpServer *mcpserver.MCPServer
	metrics   *otel.Metrics

	// registryURL/tag configure the optional remote push after publish.
	registryURL string
	registryTag string
}

// Options configures a Gateway.
type Options struct {
	Engine       *gate.Engine
	Orchestrator *pipeline.Orchestrator
	Publisher    *pipeline.Publisher
	Compiler     *pipeline.Compiler
	Manager      *runtime.Manager
	Metrics      *otel.Metrics
	Version      string
	RegistryURL  string
	RegistryTag  string
}

// New assembles the gateway and registers the synthetic tool plus all
// currently loaded runtime tools.
func New(opts Options) (*Gateway, error) {
	if opts.Engine == nil || opts.Orchestrator == nil || opts.Publisher == nil || opts.Manager == nil {
		return nil, fmt.Errorf("gateway: engine, orchestrator, publisher, and manager are required")
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	g := &Gateway{
		engine:       opts.Engine,
		orchestrator: opts.Orchestrator,
		publisher:    opts.Publisher,
		compiler:     opts.Compiler,
		manager:      opts.Manager,
		metrics:      opts.Metrics,
		registryURL:  opts.RegistryURL,
		registryTag:  opts.RegistryTag,
	}

	g.mcpServer = mcpserver.NewMCPServer(
		"girt",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
		mcpserver.WithRecovery(),
	)

	g.mcpServer.AddTool(requestCapabilityTool(), g.handleRequestCapability)
	for _, meta := range g.manager.ListTools() {
		g.registerRuntimeTool(meta)
	}
	return g, nil
}

// ServeStdio blocks, serving the MCP protocol on stdin/stdout.
func (g *Gateway) ServeStdio() error {
	slog.Info("gateway serving on stdio")
	return mcpserver.ServeStdio(g.mcpServer)
}

// registerRuntimeTool adds a loaded component to the agent-visible tool
// list. mcp-go pushes tools/list_changed to connected clients.
func (g *Gateway) registerRuntimeTool(meta runtime.ComponentMeta) {
	schema := meta.InputSchema
	if len(schema) == 0 {
		schema = []byte(`{"type":"object"}`)
	}
	tool := mcplib.NewToolWithRawSchema(meta.ToolName, meta.Description, schema)
	g.mcpServer.AddTool(tool, g.makeToolHandler(meta))
	slog.Info("tool registered", "tool", meta.ToolName, "component_id", meta.ComponentID)
}

// unregisterRuntimeTool removes a tool from the agent-visible list.
func (g *Gateway) unregisterRuntimeTool(toolName string) {
	g.mcpServer.DeleteTools(toolName)
	slog.Info("tool unregistered", "tool", toolName)
}

// UnloadTool unloads a component from the runtime and drops its tool
// from the agent-visible list.
func (g *Gateway) UnloadTool(ctx context.Context, componentID, toolName string) error {
	if err := g.manager.UnloadComponent(ctx, componentID); err != nil {
		return err
	}
	g.unregisterRuntimeTool(toolName)
	return nil
}
