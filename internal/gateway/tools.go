package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
	"github.com/epiphytic/girt/internal/pipeline"
	"github.com/epiphytic/girt/internal/runtime"
)

// requestCapabilityTool describes the synthetic tool through which an
// agent asks for a new capability.
func requestCapabilityTool() mcplib.Tool {
	return mcplib.NewTool("request_capability",
		mcplib.WithDescription("Request a new capability/tool to be built. "+
			"Provide a specification describing what the tool should do, "+
			"its inputs, outputs, and security constraints."),
		mcplib.WithString("name",
			mcplib.Required(),
			mcplib.Description("A descriptive snake_case name for the tool"),
		),
		mcplib.WithString("description",
			mcplib.Required(),
			mcplib.Description("What this tool does and why it is needed"),
		),
		mcplib.WithObject("inputs",
			mcplib.Description("Input parameter schema"),
		),
		mcplib.WithObject("outputs",
			mcplib.Description("Expected output schema"),
		),
		mcplib.WithObject("constraints",
			mcplib.Description("Security constraints: network hosts, storage paths, secret names"),
		),
	)
}

// statusResult renders a JSON status object as a tool result.
func statusResult(body map[string]any, isError bool) *mcplib.CallToolResult {
	out, err := json.Marshal(body)
	if err != nil {
		return mcplib.NewToolResultError("internal: encode status")
	}
	result := mcplib.NewToolResultText(string(out))
	result.IsError = isError
	return result
}

// decisionResult renders a cascade verdict as a tool result. Denials are
// flagged as errors; defers and asks are informational.
func decisionResult(layered decision.Layered) *mcplib.CallToolResult {
	result := mcplib.NewToolResultText(string(layered.Decision.StatusJSON()))
	result.IsError = layered.Decision.Kind == decision.KindDeny
	return result
}

// handleRequestCapability runs the creation gate and, on allow, drives
// the pipeline to completion, publishes the artifact, and loads the
// tool into the runtime.
func (g *Gateway) handleRequestCapability(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	raw, err := json.Marshal(args)
	if err != nil {
		return mcplib.NewToolResultError("invalid capability spec"), nil
	}
	var capSpec spec.CapabilitySpec
	if err := json.Unmarshal(raw, &capSpec); err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("invalid capability spec: %v", err)), nil
	}
	if capSpec.Name == "" || !capSpec.ValidName() {
		return mcplib.NewToolResultError("capability spec requires a name matching [a-zA-Z0-9_-]{1,128}"), nil
	}

	slog.Info("evaluating capability request", "name", capSpec.Name)
	verdict := g.engine.Evaluate(ctx, decision.GateCreation, spec.CreationInput(&capSpec))
	slog.Info("creation gate decision",
		"name", capSpec.Name, "decision", verdict.Decision.Kind, "layer", verdict.Layer)
	g.recordGate(ctx, verdict)

	if verdict.Decision.Kind != decision.KindAllow {
		return decisionResult(verdict), nil
	}

	buildStart := time.Now()
	request := build.NewCapabilityRequest(capSpec, build.SourceOperator)
	outcome := g.orchestrator.Run(ctx, &request)
	if g.metrics != nil {
		g.metrics.BuildsStarted.Add(ctx, 1)
		g.metrics.BuildDuration.Record(ctx, time.Since(buildStart).Seconds())
		switch outcome.Status {
		case pipeline.OutcomeFailed:
			g.metrics.BuildsFailed.Add(ctx, 1)
		default:
			g.metrics.BuildsCompleted.Add(ctx, 1)
		}
	}

	switch outcome.Status {
	case pipeline.OutcomeRecommendExtend:
		return statusResult(map[string]any{
			"status":   "recommend_extend",
			"target":   outcome.ExtendTarget,
			"features": outcome.ExtendFeatures,
		}, false), nil
	case pipeline.OutcomeFailed:
		return statusResult(map[string]any{
			"status": "build_failed",
			"error":  outcome.Err.Error(),
		}, true), nil
	}

	return g.publishAndLoad(ctx, outcome.Artifact)
}

// publishAndLoad persists a built artifact, compiles it, and loads the
// result into the runtime so it appears in the agent's tool list.
func (g *Gateway) publishAndLoad(ctx context.Context, artifact *build.Artifact) (*mcplib.CallToolResult, error) {
	if _, err := g.publisher.Publish(artifact); err != nil {
		return statusResult(map[string]any{
			"status": "publish_failed",
			"error":  err.Error(),
		}, true), nil
	}

	if g.compiler == nil {
		// No toolchain wired: the artifact is stored without a binary
		// and is not loaded into the runtime.
		return g.builtResult(artifact), nil
	}

	compiled, err := g.compiler.Compile(ctx, &pipeline.CompileInput{
		ToolName:    artifact.Spec.Name,
		ToolVersion: "0.1.0",
		Output:      artifact.BuildOutput,
	})
	if err != nil {
		var compileErr *pipeline.CompileError
		body := map[string]any{"status": "compile_failed", "error": err.Error()}
		if errors.As(err, &compileErr) {
			body["stderr"] = compileErr.Stderr
		}
		return statusResult(body, true), nil
	}

	if _, err := g.publisher.PublishWithWasm(artifact, compiled.WasmPath); err != nil {
		return statusResult(map[string]any{
			"status": "publish_failed",
			"error":  err.Error(),
		}, true), nil
	}

	meta := runtime.ComponentMeta{
		ComponentID: artifact.Spec.Name + "@0.1.0",
		ToolName:    artifact.Spec.Name,
		Description: artifact.Spec.Description,
		InputSchema: artifact.Spec.Inputs,
		BuiltAt:     time.Now().UnixMilli(),
	}
	if policy, perr := build.ParsePolicyYAML(artifact.BuildOutput.PolicyYAML); perr == nil {
		res := policy.Resources
		meta.Resources = &res
	}
	if _, err := g.manager.LoadComponent(ctx, compiled.WasmPath, meta); err != nil {
		return statusResult(map[string]any{
			"status": "compile_failed",
			"error":  fmt.Sprintf("load component: %v", err),
		}, true), nil
	}
	g.registerRuntimeTool(meta)

	if g.registryURL != "" {
		if ref, err := g.publisher.PushRemote(ctx, artifact, g.registryURL, g.registryTag); err != nil {
			slog.Warn("remote push failed", "tool", artifact.Spec.Name, "error", err)
		} else {
			slog.Info("remote push complete", "tool", artifact.Spec.Name, "reference", ref)
		}
	}

	return g.builtResult(artifact), nil
}

func (g *Gateway) builtResult(artifact *build.Artifact) *mcplib.CallToolResult {
	body := map[string]any{
		"status":     "built",
		"tool":       artifact.Spec.Name,
		"iterations": artifact.BuildIterations,
		"tests_run":  artifact.QaResult.TestsRun,
	}
	if artifact.Escalated {
		body["escalated"] = true
		body["unresolved_tickets"] = len(artifact.EscalatedTickets)
	}
	return statusResult(body, false)
}

// makeToolHandler builds the per-tool handler: validate arguments
// against the component's input schema, run the execution gate, and on
// allow invoke the runtime.
func (g *Gateway) makeToolHandler(meta runtime.ComponentMeta) func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args := req.GetArguments()
		rawArgs, err := json.Marshal(args)
		if err != nil {
			return mcplib.NewToolResultError("invalid arguments"), nil
		}

		if msg := validateArgs(meta.InputSchema, rawArgs); msg != "" {
			return mcplib.NewToolResultError(msg), nil
		}

		execReq := spec.ExecutionRequest{ToolName: meta.ToolName, Arguments: rawArgs}
		verdict := g.engine.Evaluate(ctx, decision.GateExecution, spec.ExecutionInput(&execReq))
		slog.Info("execution gate decision",
			"tool", meta.ToolName, "decision", verdict.Decision.Kind, "layer", verdict.Layer)
		g.recordGate(ctx, verdict)

		if verdict.Decision.Kind != decision.KindAllow {
			return decisionResult(verdict), nil
		}

		invokeStart := time.Now()
		output, err := g.manager.CallTool(ctx, meta.ToolName, rawArgs)
		if g.metrics != nil {
			g.metrics.ToolInvocations.Add(ctx, 1)
			g.metrics.InvokeDuration.Record(ctx, time.Since(invokeStart).Seconds())
		}
		if err != nil {
			if g.metrics != nil {
				g.metrics.ToolErrors.Add(ctx, 1)
			}
			var toolErr *runtime.ToolError
			if errors.As(err, &toolErr) {
				return mcplib.NewToolResultError(toolErr.Message), nil
			}
			return mcplib.NewToolResultError(fmt.Sprintf("invocation failed: %v", err)), nil
		}
		return mcplib.NewToolResultText(string(output)), nil
	}
}

// recordGate mirrors a cascade verdict into the metric instruments.
func (g *Gateway) recordGate(ctx context.Context, verdict decision.Layered) {
	if g.metrics == nil {
		return
	}
	g.metrics.GateEvaluations.Add(ctx, 1)
	if verdict.Decision.Kind == decision.KindDeny {
		g.metrics.GateDenials.Add(ctx, 1)
	}
}

// validateArgs checks the call arguments against the tool's input
// schema. Returns an empty string when valid or the schema is absent; a
// broken schema is logged and skipped rather than blocking the tool.
func validateArgs(schema, rawArgs json.RawMessage) string {
	if len(schema) == 0 {
		return ""
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		slog.Warn("tool input schema unreadable, skipping validation", "error", err)
		return ""
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inputs.json", doc); err != nil {
		slog.Warn("tool input schema rejected, skipping validation", "error", err)
		return ""
	}
	compiled, err := compiler.Compile("inputs.json")
	if err != nil {
		slog.Warn("tool input schema failed to compile, skipping validation", "error", err)
		return ""
	}

	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(rawArgs))
	if err != nil {
		return fmt.Sprintf("invalid arguments: %v", err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Sprintf("arguments do not match the tool's input schema: %v", err)
	}
	return ""
}
