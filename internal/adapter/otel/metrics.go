package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "girt"

// Metrics holds all GIRT metric instruments.
type Metrics struct {
	GateEvaluations metric.Int64Counter
	GateDenials     metric.Int64Counter
	ToolInvocations metric.Int64Counter
	ToolErrors      metric.Int64Counter
	BuildsStarted   metric.Int64Counter
	BuildsCompleted metric.Int64Counter
	BuildsFailed    metric.Int64Counter
	BuildDuration   metric.Float64Histogram
	InvokeDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.GateEvaluations, err = meter.Int64Counter("girt.gate.evaluations",
		metric.WithDescription("Number of gate evaluations")); err != nil {
		return nil, err
	}
	if m.GateDenials, err = meter.Int64Counter("girt.gate.denials",
		metric.WithDescription("Number of gate denials")); err != nil {
		return nil, err
	}
	if m.ToolInvocations, err = meter.Int64Counter("girt.tool.invocations",
		metric.WithDescription("Number of tool invocations")); err != nil {
		return nil, err
	}
	if m.ToolErrors, err = meter.Int64Counter("girt.tool.errors",
		metric.WithDescription("Number of tool-level errors")); err != nil {
		return nil, err
	}
	if m.BuildsStarted, err = meter.Int64Counter("girt.builds.started",
		metric.WithDescription("Number of pipeline builds started")); err != nil {
		return nil, err
	}
	if m.BuildsCompleted, err = meter.Int64Counter("girt.builds.completed",
		metric.WithDescription("Number of pipeline builds completed")); err != nil {
		return nil, err
	}
	if m.BuildsFailed, err = meter.Int64Counter("girt.builds.failed",
		metric.WithDescription("Number of pipeline builds failed")); err != nil {
		return nil, err
	}
	if m.BuildDuration, err = meter.Float64Histogram("girt.build.duration_seconds",
		metric.WithDescription("Pipeline build duration in seconds")); err != nil {
		return nil, err
	}
	if m.InvokeDuration, err = meter.Float64Histogram("girt.tool.duration_seconds",
		metric.WithDescription("Tool invocation duration in seconds")); err != nil {
		return nil, err
	}

	return m, nil
}
