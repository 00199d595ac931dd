package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/port/llm"
)

// BreakerMode selects what happens when the iteration limit is reached
// with blocking tickets still open.
type BreakerMode string

const (
	// BreakerFail aborts the build with a circuit-breaker error.
	BreakerFail BreakerMode = "fail"
	// BreakerProceed ships the artifact flagged as escalated.
	BreakerProceed BreakerMode = "proceed"
	// BreakerAsk routes the escalation to a human; degrades to proceed
	// when no approver is available.
	BreakerAsk BreakerMode = "ask"
)

// Approver puts an escalation question in front of a human and returns
// their verdict.
type Approver interface {
	Approve(ctx context.Context, question, detail string) (bool, error)
}

// Options tunes a pipeline run.
type Options struct {
	MaxIterations    int
	OnBreaker        BreakerMode
	Target           build.TargetLanguage
	Approver         Approver
	ArchitectTimeout time.Duration
	PlannerTimeout   time.Duration
	EngineerTimeout  time.Duration
	ReviewTimeout    time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxIterations <= 0 {
		out.MaxIterations = 3
	}
	if out.OnBreaker == "" {
		out.OnBreaker = BreakerFail
	}
	if out.Target == "" {
		out.Target = build.LanguageGo
	}
	if out.ArchitectTimeout <= 0 {
		out.ArchitectTimeout = 60 * time.Second
	}
	if out.PlannerTimeout <= 0 {
		out.PlannerTimeout = 180 * time.Second
	}
	if out.EngineerTimeout <= 0 {
		out.EngineerTimeout = 180 * time.Second
	}
	if out.ReviewTimeout <= 0 {
		out.ReviewTimeout = 60 * time.Second
	}
	return out
}

// OutcomeStatus tags the result of a pipeline run.
type OutcomeStatus string

const (
	OutcomeBuilt           OutcomeStatus = "built"
	OutcomeRecommendExtend OutcomeStatus = "recommend_extend"
	OutcomeFailed          OutcomeStatus = "build_failed"
)

// Outcome is the result of one pipeline run.
type Outcome struct {
	Status         OutcomeStatus
	Artifact       *build.Artifact
	ExtendTarget   string
	ExtendFeatures []string
	Err            error
}

// Orchestrator drives architect → [planner] → engineer ↔ (QA ∥ red-team)
// for a capability request.
type Orchestrator struct {
	llm     llm.Client
	opts    Options
	metrics *Metrics
}

// NewOrchestrator creates an orchestrator with the given client and
// options.
func NewOrchestrator(client llm.Client, opts Options) *Orchestrator {
	return &Orchestrator{llm: client, opts: opts.withDefaults(), metrics: NewMetrics()}
}

// SetMetrics replaces the metrics sink (shared across runs).
func (o *Orchestrator) SetMetrics(m *Metrics) {
	if m != nil {
		o.metrics = m
	}
}

// Metrics returns the orchestrator's metrics sink.
func (o *Orchestrator) Metrics() *Metrics { return o.metrics }

// Run executes the full pipeline for a capability request.
func (o *Orchestrator) Run(ctx context.Context, request *build.CapabilityRequest) Outcome {
	o.metrics.BuildStarted()
	started := time.Now()

	timings := build.StageTimings{}

	// Phase 1: the architect refines the spec. Failure falls back to the
	// unrefined spec so one flaky response does not sink the build.
	architect := NewArchitect(o.llm)
	archCtx, cancel := context.WithTimeout(ctx, o.opts.ArchitectTimeout)
	refined, archUsage, err := architect.Refine(archCtx, &request.Spec)
	cancel()
	timings.ArchitectMS = time.Since(started).Milliseconds()
	timings.ArchitectTokens = archUsage
	if err != nil {
		slog.Warn("architect failed, using passthrough spec", "error", err)
		refined = Passthrough(&request.Spec)
	}

	if refined.Action == build.ActionRecommendExtend {
		o.metrics.RecommendExtend()
		return Outcome{
			Status:         OutcomeRecommendExtend,
			ExtendTarget:   refined.ExtendTarget,
			ExtendFeatures: refined.ExtendFeatures,
		}
	}

	outcome := o.buildFromRefined(ctx, refined, &timings, started)
	return outcome
}

// RunFromSpec executes the pipeline with an already-refined spec,
// skipping the architect phase.
func (o *Orchestrator) RunFromSpec(ctx context.Context, refined *build.RefinedSpec) Outcome {
	o.metrics.BuildStarted()
	if refined.Action == build.ActionRecommendExtend {
		o.metrics.RecommendExtend()
		return Outcome{
			Status:         OutcomeRecommendExtend,
			ExtendTarget:   refined.ExtendTarget,
			ExtendFeatures: refined.ExtendFeatures,
		}
	}
	timings := build.StageTimings{}
	return o.buildFromRefined(ctx, refined, &timings, time.Now())
}

func (o *Orchestrator) buildFromRefined(ctx context.Context, refined *build.RefinedSpec, timings *build.StageTimings, started time.Time) Outcome {
	// Phase 2: the planner runs only when the spec meets complexity
	// triggers. Planner failure is non-fatal.
	var plan *build.ImplementationPlan
	if NeedsPlan(refined) {
		planner := NewPlanner(o.llm)
		planStart := time.Now()
		planCtx, cancel := context.WithTimeout(ctx, o.opts.PlannerTimeout)
		p, usage, err := planner.Plan(planCtx, refined)
		cancel()
		timings.PlannerMS = time.Since(planStart).Milliseconds()
		timings.PlannerTokens = &usage
		if err != nil {
			slog.Warn("planner failed, continuing without plan", "error", err)
		} else {
			plan = p
		}
	}

	// Phase 3-4: build loop with QA and red-team validation.
	artifact, err := o.buildLoop(ctx, refined, plan, timings)
	timings.TotalMS = time.Since(started).Milliseconds()
	if err != nil {
		o.metrics.BuildFailed()
		return Outcome{Status: OutcomeFailed, Err: err}
	}
	artifact.Timings = *timings
	o.metrics.BuildCompleted(artifact.BuildIterations)
	return Outcome{Status: OutcomeBuilt, Artifact: artifact}
}

func (o *Orchestrator) buildLoop(ctx context.Context, refined *build.RefinedSpec, plan *build.ImplementationPlan, timings *build.StageTimings) (*build.Artifact, error) {
	engineer := NewEngineerWithTarget(o.llm, o.opts.Target)
	qa := NewQA(o.llm)
	redTeam := NewRedTeam(o.llm)

	engStart := time.Now()
	engCtx, cancel := context.WithTimeout(ctx, o.opts.EngineerTimeout)
	output, engUsage, err := engineer.Build(engCtx, refined, plan)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("engineer build: %w", err)
	}
	engMS := time.Since(engStart).Milliseconds()

	iteration := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slog.Info("build iteration starting", "iteration", iteration, "tool", refined.Spec.Name)

		iterTimings := build.IterationTimings{
			Iteration:      iteration,
			EngineerMS:     engMS,
			EngineerTokens: engUsage,
		}

		// QA and red-team are independent; run them concurrently and
		// merge their tickets deterministically, QA first.
		var qaResult build.QaResult
		var secResult build.SecurityResult
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			start := time.Now()
			qaCtx, cancel := context.WithTimeout(gctx, o.opts.ReviewTimeout)
			defer cancel()
			result, usage, err := qa.Test(qaCtx, refined, output)
			if err != nil {
				return fmt.Errorf("qa: %w", err)
			}
			qaResult = result
			iterTimings.QaMS = time.Since(start).Milliseconds()
			iterTimings.QaTokens = usage
			return nil
		})
		g.Go(func() error {
			start := time.Now()
			auditCtx, cancel := context.WithTimeout(gctx, o.opts.ReviewTimeout)
			defer cancel()
			result, usage, err := redTeam.Audit(auditCtx, refined, output)
			if err != nil {
				return fmt.Errorf("red-team: %w", err)
			}
			secResult = result
			iterTimings.RedTeamMS = time.Since(start).Milliseconds()
			iterTimings.RedTeamTokens = usage
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		timings.Iterations = append(timings.Iterations, iterTimings)

		tickets := make([]build.BugTicket, 0, len(qaResult.BugTickets)+len(secResult.BugTickets))
		tickets = append(tickets, qaResult.BugTickets...)
		tickets = append(tickets, secResult.BugTickets...)
		blocking, advisory := build.Partition(tickets)
		if len(advisory) > 0 {
			slog.Info("advisory tickets recorded", "count", len(advisory), "tool", refined.Spec.Name)
		}

		if len(blocking) == 0 {
			slog.Info("pipeline passed all checks", "iterations", iteration, "tool", refined.Spec.Name)
			return &build.Artifact{
				Spec:            refined.Spec,
				RefinedSpec:     *refined,
				BuildOutput:     *output,
				QaResult:        qaResult,
				SecurityResult:  secResult,
				BuildIterations: iteration,
			}, nil
		}

		if iteration >= o.opts.MaxIterations {
			return o.breakCircuit(ctx, refined, output, qaResult, secResult, blocking, iteration)
		}

		// Fix: the first blocking ticket goes back to the engineer.
		ticket := blocking[0]
		slog.Info("sending fix directive to engineer",
			"iteration", iteration, "ticket_type", ticket.Kind, "severity", ticket.Severity)
		engStart = time.Now()
		fixCtx, cancel := context.WithTimeout(ctx, o.opts.EngineerTimeout)
		output, engUsage, err = engineer.Fix(fixCtx, refined, output, &ticket)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("engineer fix: %w", err)
		}
		engMS = time.Since(engStart).Milliseconds()
		iteration++
	}
}

// breakCircuit applies the configured circuit-breaker policy once the
// iteration limit is hit with blocking tickets open.
func (o *Orchestrator) breakCircuit(
	ctx context.Context,
	refined *build.RefinedSpec,
	output *build.BuildOutput,
	qaResult build.QaResult,
	secResult build.SecurityResult,
	blocking []build.BugTicket,
	iteration int,
) (*build.Artifact, error) {
	o.metrics.CircuitBreaker()
	summary := build.TicketSummary(blocking)
	slog.Error("circuit breaker: max iterations reached",
		"iterations", iteration, "blocking", len(blocking), "mode", o.opts.OnBreaker)

	mode := o.opts.OnBreaker
	if mode == BreakerAsk {
		approved, err := o.askToProceed(ctx, refined, summary)
		if err != nil {
			slog.Warn("escalation approver unavailable, proceeding with warning", "error", err)
			mode = BreakerProceed
		} else if approved {
			mode = BreakerProceed
		} else {
			mode = BreakerFail
		}
	}

	switch mode {
	case BreakerProceed:
		o.metrics.Escalated()
		return &build.Artifact{
			Spec:             refined.Spec,
			RefinedSpec:      *refined,
			BuildOutput:      *output,
			QaResult:         qaResult,
			SecurityResult:   secResult,
			BuildIterations:  iteration,
			Escalated:        true,
			EscalatedTickets: blocking,
		}, nil
	default:
		return nil, &CircuitBreakerError{Attempts: iteration, Summary: summary}
	}
}

func (o *Orchestrator) askToProceed(ctx context.Context, refined *build.RefinedSpec, summary string) (bool, error) {
	if o.opts.Approver == nil {
		return false, fmt.Errorf("no escalation approver configured")
	}
	question := fmt.Sprintf("Build of %q hit the iteration limit with unresolved blocking tickets. Ship anyway?", refined.Spec.Name)
	return o.opts.Approver.Approve(ctx, question, summary)
}
