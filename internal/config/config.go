// Package config loads, validates, and watches the Parley
// configuration file.
package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Parley configuration
type Config struct {
	// LLM provider profiles
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Specialist agents and their MCP servers
	Agents []AgentConfig `json:"agents" mapstructure:"agents"`

	// Workflow tuning
	Workflow WorkflowConfig `json:"workflow" mapstructure:"workflow"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Run history store
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Scheduled tasks
	Schedules []ScheduleConfig `json:"schedules" mapstructure:"schedules"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LLMConfig holds provider credentials and model selection
type LLMConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Model    string `json:"model" mapstructure:"model"`
}

// AgentConfig represents one specialist agent and the MCP server it
// fronts
type AgentConfig struct {
	Name         string       `json:"name" mapstructure:"name"`
	Model        string       `json:"model" mapstructure:"model"`
	Temperature  float64      `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int          `json:"max_tokens" mapstructure:"max_tokens"`
	AllowedTools []string     `json:"allowed_tools" mapstructure:"allowed_tools"`
	Server       ServerConfig `json:"server" mapstructure:"server"`
}

// ServerConfig describes how to reach an agent's MCP server
type ServerConfig struct {
	Transport string            `json:"transport" mapstructure:"transport"` // stdio, websocket
	Command   string            `json:"command" mapstructure:"command"`
	Args      []string          `json:"args" mapstructure:"args"`
	Env       map[string]string `json:"env" mapstructure:"env"`
	URL       string            `json:"url" mapstructure:"url"`
	Headers   map[string]string `json:"headers" mapstructure:"headers"`
}

// WorkflowConfig holds orchestration tuning
type WorkflowConfig struct {
	MaxRounds             int `json:"max_rounds" mapstructure:"max_rounds"`
	HandlerTimeoutSeconds int `json:"handler_timeout_seconds" mapstructure:"handler_timeout_seconds"`
	QueueSize             int `json:"queue_size" mapstructure:"queue_size"`
	GracePeriodSeconds    int `json:"grace_period_seconds" mapstructure:"grace_period_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// HistoryConfig holds the run history store configuration
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// ScheduleConfig represents one cron-scheduled task
type ScheduleConfig struct {
	Name string `json:"name" mapstructure:"name"`
	Cron string `json:"cron" mapstructure:"cron"`
	Task string `json:"task" mapstructure:"task"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Workflow: WorkflowConfig{
			MaxRounds:             10,
			HandlerTimeoutSeconds: 300,
			QueueSize:             64,
			GracePeriodSeconds:    10,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateLLM(c.LLM); err != nil {
		return err
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent must be configured")
	}

	seen := map[string]bool{}
	for i, agent := range c.Agents {
		if agent.Name == "" {
			return fmt.Errorf("agent %d: name is required", i)
		}
		if seen[agent.Name] {
			return fmt.Errorf("agent %s: duplicate name", agent.Name)
		}
		seen[agent.Name] = true

		if err := validateServer(agent.Name, agent.Server); err != nil {
			return err
		}
	}

	if c.Workflow.MaxRounds < 0 {
		return fmt.Errorf("workflow max_rounds must not be negative")
	}

	for i, sched := range c.Schedules {
		if sched.Cron == "" {
			return fmt.Errorf("schedule %d: cron expression is required", i)
		}
		if sched.Task == "" {
			return fmt.Errorf("schedule %d: task is required", i)
		}
	}

	return nil
}
