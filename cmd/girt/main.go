// Command girt runs the GIRT gateway: an MCP server that mediates
// between an AI agent and a sandboxed wasm tool runtime.
//
// Subcommands:
//
//	serve          start the stdio MCP gateway (default)
//	worker         drain the build queue once and exit
//	seed           enqueue the standard library of seed specs
//	auth login     run the OAuth PKCE login flow
//	auth status    show stored credential state
//	version        print the version
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/epiphytic/girt/internal/adapter/anthropic"
	"github.com/epiphytic/girt/internal/adapter/discord"
	"github.com/epiphytic/girt/internal/adapter/openaicompat"
	girtotel "github.com/epiphytic/girt/internal/adapter/otel"
	"github.com/epiphytic/girt/internal/config"
	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/gate"
	"github.com/epiphytic/girt/internal/gateway"
	"github.com/epiphytic/girt/internal/logger"
	"github.com/epiphytic/girt/internal/pipeline"
	"github.com/epiphytic/girt/internal/port/llm"
	"github.com/epiphytic/girt/internal/resilience"
	"github.com/epiphytic/girt/internal/runtime"
	"github.com/epiphytic/girt/internal/secrets"
	"github.com/epiphytic/girt/internal/store"
)

var version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("girt", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigFile, "path to girt.yaml")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cmd := "serve"
	rest := fs.Args()
	if len(rest) > 0 {
		cmd = rest[0]
		rest = rest[1:]
	}

	switch cmd {
	case "version":
		fmt.Println("girt", version)
		return 0
	case "auth":
		return runAuth(rest)
	case "serve", "worker", "seed":
	default:
		fmt.Fprintf(os.Stderr, "girt: unknown subcommand %q\n", cmd)
		return 2
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "girt: %v\n", err)
		return 1
	}

	closer := logger.Init(cfg.Logging.Level, cfg.Logging.Service, cfg.Logging.Async)
	defer closer.Close()

	ctx := context.Background()

	otelShutdown, err := girtotel.Init(girtotel.Config{
		Enabled:     cfg.OTEL.Enabled,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.Service,
	})
	if err != nil {
		slog.Error("otel init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	client, err := buildLLMClient(ctx, cfg)
	if err != nil {
		slog.Error("llm client init failed", "error", err)
		return 1
	}

	engine, approval, err := buildEngine(cfg, client)
	if err != nil {
		slog.Error("decision engine init failed", "error", err)
		return 1
	}

	wazeroEngine, err := runtime.NewWazeroEngine(ctx, filepath.Join(cfg.Runtime.StorageDir, "cache"))
	if err != nil {
		slog.Error("wasm engine init failed", "error", err)
		return 1
	}
	manager, err := runtime.NewManager(wazeroEngine, cfg.Runtime.StorageDir)
	if err != nil {
		slog.Error("runtime init failed", "error", err)
		return 1
	}
	defer func() { _ = manager.Close(ctx) }()

	manager.LoadPersisted(ctx)

	toolStore := store.New(cfg.Store.Dir)
	publisher := pipeline.NewPublisher(toolStore)
	if err := publisher.Init(); err != nil {
		slog.Error("store init failed", "error", err)
		return 1
	}

	pipelineOpts := pipeline.Options{
		MaxIterations: cfg.Pipeline.MaxIterations,
		OnBreaker:     pipeline.BreakerMode(cfg.Pipeline.OnCircuitBreaker),
		Target:        build.TargetLanguage(cfg.Pipeline.TargetLanguage),
	}
	if approval != nil {
		pipelineOpts.Approver = approval
	}
	orchestrator := pipeline.NewOrchestrator(client, pipelineOpts)

	var instruments *girtotel.Metrics
	if cfg.OTEL.Enabled {
		if instruments, err = girtotel.NewMetrics(); err != nil {
			slog.Error("metric instruments init failed", "error", err)
			return 1
		}
	}

	gw, err := gateway.New(gateway.Options{
		Engine:       engine,
		Orchestrator: orchestrator,
		Publisher:    publisher,
		Compiler:     pipeline.NewCompiler(),
		Manager:      manager,
		Metrics:      instruments,
		Version:      version,
		RegistryURL:  cfg.Registry.URL,
		RegistryTag:  cfg.Registry.Tag,
	})
	if err != nil {
		slog.Error("gateway init failed", "error", err)
		return 1
	}

	switch cmd {
	case "worker":
		return runWorker(ctx, cfg, orchestrator, publisher)
	case "seed":
		return runSeed(cfg)
	}

	if err := gw.ServeStdio(); err != nil {
		slog.Error("gateway exited", "error", err)
		return 1
	}
	return 0
}

// buildLLMClient selects the provider from config. The anthropic
// provider resolves credentials env-first, then the OAuth store, then
// the config key.
func buildLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	breaker := resilience.NewBreaker("llm", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	switch cfg.LLM.Provider {
	case "anthropic":
		client, err := anthropic.NewFromCredentials(ctx, cfg.LLM.Model, cfg.LLM.APIKey, secrets.NewOAuthStore())
		if err != nil {
			return nil, err
		}
		client.SetBreaker(breaker)
		return client, nil
	case "openai-compatible":
		apiKey := os.Getenv("GIRT_LLM_API_KEY")
		if apiKey == "" {
			apiKey = cfg.LLM.APIKey
		}
		client := openaicompat.New(cfg.LLM.BaseURL, cfg.LLM.Model, apiKey)
		client.SetBreaker(breaker)
		return client, nil
	default:
		return llm.Constant(`{"decision": "ask", "rationale": "stub provider"}`), nil
	}
}

// buildEngine assembles both gate cascades. When a Discord webhook is
// configured, it backs the HITL layer and the pipeline escalation hook.
func buildEngine(cfg *config.Config, client llm.Client) (*gate.Engine, *discord.Approval, error) {
	creationCache, err := gate.NewDecisionCache(cfg.Gates.CacheEntries)
	if err != nil {
		return nil, nil, err
	}
	executionCache, err := gate.NewDecisionCache(cfg.Gates.CacheEntries)
	if err != nil {
		return nil, nil, err
	}

	evaluator := gate.NewLlmGateEvaluator(client)

	var responder gate.Responder
	var approval *discord.Approval
	if cfg.Approval.DiscordWebhookURL != "" {
		approval = discord.NewApproval(discord.NewNotifier(cfg.Approval.DiscordWebhookURL))
		approval.SetTimeouts(cfg.Approval.PollTimeout, cfg.Approval.OverallTimeout)
		responder = approval
	}

	engine := gate.NewEngine(
		gate.CreationLayers{
			Policy:   gate.DefaultPolicyRules(),
			Cache:    creationCache,
			Registry: gate.NewRegistryLookup(nil, nil),
			CliCheck: gate.DefaultCliCheck(),
			Llm:      gate.NewLlmEvaluation(evaluator),
			Hitl:     gate.NewHitl(responder),
		},
		gate.ExecutionLayers{
			Policy: gate.DefaultPolicyRules(),
			Cache:  executionCache,
			Llm:    gate.NewLlmEvaluation(evaluator),
			Hitl:   gate.NewHitl(responder),
		},
	)
	engine.SetPolicyOnly(cfg.Gates.PolicyOnly)
	return engine, approval, nil
}

// runWorker drains the build queue once: claim, build, publish, repeat
// until empty.
func runWorker(ctx context.Context, cfg *config.Config, orchestrator *pipeline.Orchestrator, publisher *pipeline.Publisher) int {
	queue := pipeline.NewQueue(cfg.Queue.Dir)
	if err := queue.Init(); err != nil {
		slog.Error("queue init failed", "error", err)
		return 1
	}

	for {
		req, err := queue.ClaimNext()
		if errors.Is(err, pipeline.ErrQueueEmpty) {
			slog.Info("queue drained")
			return 0
		}
		if err != nil {
			slog.Error("queue claim failed", "error", err)
			return 1
		}

		outcome := orchestrator.Run(ctx, req)
		switch outcome.Status {
		case pipeline.OutcomeBuilt:
			if _, err := publisher.Publish(outcome.Artifact); err != nil {
				slog.Error("publish failed", "tool", req.Spec.Name, "error", err)
				_ = queue.Fail(req)
				continue
			}
			_ = queue.Complete(req)
		case pipeline.OutcomeRecommendExtend:
			slog.Info("pipeline recommends extending an existing tool",
				"request", req.ID, "target", outcome.ExtendTarget)
			_ = queue.Complete(req)
		default:
			slog.Error("build failed", "request", req.ID, "error", outcome.Err)
			_ = queue.Fail(req)
		}
	}
}

// runSeed enqueues the standard library of seed specs so a fresh
// deployment has its everyday tools queued for the next worker run.
func runSeed(cfg *config.Config) int {
	queue := pipeline.NewQueue(cfg.Queue.Dir)
	if err := queue.Init(); err != nil {
		slog.Error("queue init failed", "error", err)
		return 1
	}
	for _, s := range pipeline.StandardLibrary() {
		req := build.NewCapabilityRequest(s, build.SourceCLI)
		if err := queue.Enqueue(&req); err != nil {
			slog.Error("enqueue failed", "tool", s.Name, "error", err)
			return 1
		}
		slog.Info("seed request enqueued", "tool", s.Name, "request", req.ID)
	}
	return 0
}

// runAuth handles `girt auth login` and `girt auth status`.
func runAuth(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "girt auth: expected login or status")
		return 2
	}

	oauthStore := secrets.NewOAuthStore()

	switch args[0] {
	case "login":
		mode := secrets.ModeConsole
		if len(args) > 1 && args[1] == "--max" {
			mode = secrets.ModeMax
		}
		flow, err := secrets.StartLogin(mode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "girt auth: %v\n", err)
			return 1
		}
		fmt.Println("Visit this URL to authorize GIRT:")
		fmt.Println()
		fmt.Println("  " + flow.AuthorizationURL)
		fmt.Println()
		fmt.Print("Paste the code#state response here: ")

		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr, "girt auth: no response")
			return 1
		}
		if err := oauthStore.CompleteLogin(context.Background(), scanner.Text(), flow); err != nil {
			fmt.Fprintf(os.Stderr, "girt auth: %v\n", err)
			return 1
		}
		fmt.Println("Logged in.")
		return 0
	case "status":
		status, err := oauthStore.Status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "girt auth: %v\n", err)
			return 1
		}
		fmt.Printf("token: %s…\nexpires: %s\nexpired: %v\nrefresh token: %v\n",
			status.AccessTokenPrefix, status.ExpiresAt.Format(time.RFC3339),
			status.Expired, status.HasRefreshToken)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "girt auth: unknown subcommand %q\n", args[0])
		return 2
	}
}
