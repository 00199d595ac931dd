package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "girt.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(content, cfg)
}

// loadEnv overlays GIRT_* environment variables onto cfg.
func loadEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("GIRT_LLM_PROVIDER", &cfg.LLM.Provider)
	setString("GIRT_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("GIRT_LLM_MODEL", &cfg.LLM.Model)
	setString("GIRT_LLM_API_KEY", &cfg.LLM.APIKey)
	setString("GIRT_LOG_LEVEL", &cfg.Logging.Level)
	setString("GIRT_DISCORD_WEBHOOK_URL", &cfg.Approval.DiscordWebhookURL)
	setString("GIRT_REGISTRY_URL", &cfg.Registry.URL)
	setString("GIRT_OTEL_ENDPOINT", &cfg.OTEL.Endpoint)

	if v := os.Getenv("GIRT_PIPELINE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxIterations = n
		}
	}
	if v := os.Getenv("GIRT_PIPELINE_ON_CIRCUIT_BREAKER"); v != "" {
		cfg.Pipeline.OnCircuitBreaker = v
	}
	if v := os.Getenv("GIRT_GATES_POLICY_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Gates.PolicyOnly = b
		}
	}
	if v := os.Getenv("GIRT_OTEL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OTEL.Enabled = b
		}
	}
	if v := os.Getenv("GIRT_APPROVAL_OVERALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Approval.OverallTimeout = d
		}
	}
	// GIRT_STATE_DIR is honored by Defaults(), which derives the
	// component, store, and queue paths from it before YAML overlays.
}
