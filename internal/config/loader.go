package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	// Missing file means defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return l.finalize(DefaultConfig())
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("PARLEY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return l.finalize(cfg)
}

// finalize expands secrets and fills path defaults.
func (l *Loader) finalize(cfg *Config) (*Config, error) {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".parley")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "parley.log")
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.DataDir, "history.db")
	}

	// Secrets may be given as ${ENV_VAR} references
	cfg.LLM.APIKey = os.ExpandEnv(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = os.ExpandEnv(cfg.LLM.BaseURL)
	for i := range cfg.Agents {
		for k, val := range cfg.Agents[i].Server.Env {
			cfg.Agents[i].Server.Env[k] = os.ExpandEnv(val)
		}
		for k, val := range cfg.Agents[i].Server.Headers {
			cfg.Agents[i].Server.Headers[k] = os.ExpandEnv(val)
		}
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("llm", cfg.LLM)
	v.Set("agents", cfg.Agents)
	v.Set("workflow", cfg.Workflow)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("history", cfg.History)
	v.Set("schedules", cfg.Schedules)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".parley", "parley.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
