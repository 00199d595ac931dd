// Package config provides hierarchical configuration loading for GIRT.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all runtime configuration for the GIRT gateway.
type Config struct {
	LLM      LLM      `yaml:"llm"`
	Pipeline Pipeline `yaml:"pipeline"`
	Runtime  Runtime  `yaml:"runtime"`
	Store    Store    `yaml:"store"`
	Queue    Queue    `yaml:"queue"`
	Gates    Gates    `yaml:"gates"`
	Approval Approval `yaml:"approval"`
	Registry Registry `yaml:"registry"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	OTEL     OTEL     `yaml:"otel"`
}

// LLM holds provider selection and credentials.
type LLM struct {
	Provider  string `yaml:"provider"`   // "anthropic" | "openai-compatible" | "stub"
	BaseURL   string `yaml:"base_url"`   // OpenAI-compatible endpoint (default: http://localhost:8000/v1)
	Model     string `yaml:"model"`      // Model identifier
	APIKey    string `yaml:"api_key"`    // Fallback credential; env vars take precedence
	MaxTokens int    `yaml:"max_tokens"` // Default completion budget (default: 4096)
}

// Pipeline holds build pipeline configuration.
type Pipeline struct {
	MaxIterations    int    `yaml:"max_iterations"`     // Fix-loop ceiling (default: 3)
	OnCircuitBreaker string `yaml:"on_circuit_breaker"` // "fail" | "proceed" | "ask" (default: "fail")
	TargetLanguage   string `yaml:"target_language"`    // "go" | "rust" | "assemblyscript" (default: "go")
}

// Runtime holds wasm runtime configuration.
type Runtime struct {
	StorageDir string `yaml:"storage_dir"` // Component storage (default: ~/.girt/components)
}

// Store holds capability store configuration.
type Store struct {
	Dir string `yaml:"dir"` // Tool store root (default: ~/.girt/tools)
}

// Queue holds build queue configuration.
type Queue struct {
	Dir string `yaml:"dir"` // Queue root (default: ~/.girt/queue)
}

// Gates holds decision cascade configuration.
type Gates struct {
	// PolicyOnly is the bootstrap mode: the creation gate answers from
	// policy rules alone, allowing on pass-through. Development only.
	PolicyOnly   bool  `yaml:"policy_only"`
	CacheEntries int64 `yaml:"cache_entries"` // Per-gate decision cache size (default: 4096)
}

// Approval holds HITL transport configuration.
type Approval struct {
	DiscordWebhookURL string        `yaml:"discord_webhook_url"`
	PollTimeout       time.Duration `yaml:"poll_timeout"`    // Inner wait leg (default: 55s)
	OverallTimeout    time.Duration `yaml:"overall_timeout"` // Whole wait (default: 300s)
}

// Registry holds remote tool registry configuration.
type Registry struct {
	URL string `yaml:"url"` // Remote push target (e.g. ghcr.io/epiphytic/girt-tools)
	Tag string `yaml:"tag"` // Push tag (default: "latest")
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for provider calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// OTEL holds OpenTelemetry configuration.
type OTEL struct {
	Enabled  bool   `yaml:"enabled"`  // Enable OTLP export (default: false)
	Endpoint string `yaml:"endpoint"` // OTLP gRPC endpoint (default: "localhost:4317")
	Service  string `yaml:"service"`  // Service name (default: "girt")
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	state := stateDir()
	return Config{
		LLM: LLM{
			Provider:  "stub",
			BaseURL:   "http://localhost:8000/v1",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		},
		Pipeline: Pipeline{
			MaxIterations:    3,
			OnCircuitBreaker: "fail",
			TargetLanguage:   "go",
		},
		Runtime:  Runtime{StorageDir: filepath.Join(state, "components")},
		Store:    Store{Dir: filepath.Join(state, "tools")},
		Queue:    Queue{Dir: filepath.Join(state, "queue")},
		Gates:    Gates{CacheEntries: 4096},
		Approval: Approval{PollTimeout: 55 * time.Second, OverallTimeout: 300 * time.Second},
		Registry: Registry{Tag: "latest"},
		Logging:  Logging{Level: "info", Service: "girt"},
		Breaker:  Breaker{MaxFailures: 5, Timeout: 30 * time.Second},
		OTEL:     OTEL{Endpoint: "localhost:4317", Service: "girt"},
	}
}

// stateDir returns the GIRT state directory: $GIRT_STATE_DIR or ~/.girt.
func stateDir() string {
	if dir := os.Getenv("GIRT_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".girt"
	}
	return filepath.Join(home, ".girt")
}

// validate rejects configurations that cannot work.
func validate(cfg *Config) error {
	switch cfg.LLM.Provider {
	case "anthropic", "openai-compatible", "stub":
	default:
		return fmt.Errorf("llm.provider %q is not one of anthropic, openai-compatible, stub", cfg.LLM.Provider)
	}
	switch cfg.Pipeline.OnCircuitBreaker {
	case "fail", "proceed", "ask":
	default:
		return fmt.Errorf("pipeline.on_circuit_breaker %q is not one of fail, proceed, ask", cfg.Pipeline.OnCircuitBreaker)
	}
	if cfg.Pipeline.MaxIterations <= 0 {
		return fmt.Errorf("pipeline.max_iterations must be positive")
	}
	return nil
}
