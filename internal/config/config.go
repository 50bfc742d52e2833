// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the root configuration for the proxy.
type Config struct {
	Server   ServerConfig
	Proxy    ProxyConfig
	Agent    AgentConfig
	Scenario ScenarioConfig
	History  HistoryConfig
	Logging  LoggingConfig
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Name    string
	Version string
	Address string
	Port    int
}

// ProxyConfig configures forwarding to the upstream completion service.
type ProxyConfig struct {
	// TargetURL is the upstream OpenAI-compatible base URL
	// (e.g. https://api.openai.com/v1).
	TargetURL      string
	APIKey         string
	TimeoutSeconds int
}

// AgentConfig configures the scenario-update agent.
type AgentConfig struct {
	// Provider selects the completion backend: "openai" (default) or
	// "anthropic".
	Provider        string
	APIKey          string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	// BaseURL overrides the OpenAI endpoint, allowing any OpenAI-compatible
	// server (Ollama, vLLM, Groq, LiteLLM).
	BaseURL           string
	Model             string
	Temperature       float64
	TopP              float64
	FrequencyPenalty  float64
	PresencePenalty   float64
	MaxTokens         int64
	MaxIterations     int
	Stream            bool
	MCPConfigFilePath string
}

// ScenarioConfig configures the scenario store.
type ScenarioConfig struct {
	DBPath string
}

// HistoryConfig configures transcript persistence.
type HistoryConfig struct {
	// Type is one of "json", "txt" or "none".
	Type string
	Dir  string
	// RetentionDays bounds how long persisted transcripts are kept; 0 keeps
	// them forever.
	RetentionDays int
	// SweepSchedule is a cron expression for the retention sweep.
	SweepSchedule string
}

// LoggingConfig configures process-wide logging.
type LoggingConfig struct {
	Level    string
	FilePath string
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".deeproleplay")

	return &Config{
		Server: ServerConfig{
			Name:    "deeproleplay",
			Version: "1.0.0",
			Address: "localhost",
			Port:    6666,
		},
		Proxy: ProxyConfig{
			TargetURL:      "https://api.openai.com/v1",
			TimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			Provider:      "openai",
			Model:         "gpt-4o",
			Temperature:   0.1,
			TopP:          1.0,
			MaxIterations: 20,
			Stream:        false,
		},
		Scenario: ScenarioConfig{
			DBPath: filepath.Join(base, "scenario.db"),
		},
		History: HistoryConfig{
			Type:          "txt",
			Dir:           filepath.Join(base, "history"),
			RetentionDays: 30,
			SweepSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// FromEnv overrides cfg fields from DRP_* environment variables.
func FromEnv(cfg *Config) {
	setString(&cfg.Server.Address, "DRP_SERVER_ADDRESS")
	setInt(&cfg.Server.Port, "DRP_SERVER_PORT")

	setString(&cfg.Proxy.TargetURL, "DRP_PROXY_TARGET_URL")
	setString(&cfg.Proxy.APIKey, "DRP_PROXY_API_KEY")
	setInt(&cfg.Proxy.TimeoutSeconds, "DRP_PROXY_TIMEOUT")

	setString(&cfg.Agent.Provider, "DRP_AGENT_PROVIDER")
	setString(&cfg.Agent.APIKey, "DRP_AGENT_API_KEY")
	setString(&cfg.Agent.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.Agent.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Agent.BaseURL, "DRP_AGENT_BASE_URL")
	setString(&cfg.Agent.Model, "DRP_AGENT_MODEL")
	setFloat(&cfg.Agent.Temperature, "DRP_AGENT_TEMPERATURE")
	setInt(&cfg.Agent.MaxIterations, "DRP_AGENT_MAX_ITERATIONS")
	setBool(&cfg.Agent.Stream, "DRP_AGENT_STREAM")
	setString(&cfg.Agent.MCPConfigFilePath, "DRP_MCP_CONFIG_PATH")

	setString(&cfg.Scenario.DBPath, "DRP_SCENARIO_DB_PATH")

	setString(&cfg.History.Type, "DRP_HISTORY_TYPE")
	setString(&cfg.History.Dir, "DRP_HISTORY_DIR")
	setInt(&cfg.History.RetentionDays, "DRP_HISTORY_RETENTION_DAYS")

	setString(&cfg.Logging.Level, "DRP_LOG_LEVEL")
	setString(&cfg.Logging.FilePath, "DRP_LOG_FILE")
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Proxy.TargetURL == "" {
		return fmt.Errorf("proxy target URL must be set")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent max iterations must be >= 1, got %d", c.Agent.MaxIterations)
	}
	switch strings.ToLower(c.Agent.Provider) {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown agent provider: %s", c.Agent.Provider)
	}
	switch c.History.Type {
	case "json", "txt", "none":
	default:
		return fmt.Errorf("unknown history type: %s", c.History.Type)
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history retention days must be >= 0, got %d", c.History.RetentionDays)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
