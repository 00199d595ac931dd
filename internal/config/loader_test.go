package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.MaxIterations != 3 {
		t.Errorf("max_iterations = %d", cfg.Pipeline.MaxIterations)
	}
	if cfg.Approval.PollTimeout != 55*time.Second || cfg.Approval.OverallTimeout != 300*time.Second {
		t.Errorf("approval timeouts = %+v", cfg.Approval)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "stub" {
		t.Errorf("provider = %s", cfg.LLM.Provider)
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "girt.yaml")
	content := `
llm:
  provider: openai-compatible
  base_url: http://localhost:9000/v1
  model: test-model
pipeline:
  max_iterations: 5
  on_circuit_breaker: proceed
gates:
  policy_only: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "openai-compatible" || cfg.LLM.Model != "test-model" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Pipeline.MaxIterations != 5 || cfg.Pipeline.OnCircuitBreaker != "proceed" {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if !cfg.Gates.PolicyOnly {
		t.Error("gates.policy_only not set")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "girt.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  provider: stub\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GIRT_LLM_PROVIDER", "anthropic")
	t.Setenv("GIRT_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %s", cfg.LLM.Provider)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}
}

func TestStateDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GIRT_STATE_DIR", dir)

	cfg, err := LoadFrom(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runtime.StorageDir != filepath.Join(dir, "components") {
		t.Errorf("storage dir = %s", cfg.Runtime.StorageDir)
	}
	if cfg.Store.Dir != filepath.Join(dir, "tools") {
		t.Errorf("store dir = %s", cfg.Store.Dir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Provider = "psychic"
	if err := validate(&cfg); err == nil {
		t.Error("expected provider validation error")
	}

	cfg = Defaults()
	cfg.Pipeline.OnCircuitBreaker = "explode"
	if err := validate(&cfg); err == nil {
		t.Error("expected breaker mode validation error")
	}

	cfg = Defaults()
	cfg.Pipeline.MaxIterations = 0
	if err := validate(&cfg); err == nil {
		t.Error("expected iteration validation error")
	}
}
