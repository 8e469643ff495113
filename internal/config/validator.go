package config

import (
	"fmt"
	"strings"
)

// validateLLM checks provider selection and API key format.
func validateLLM(llm LLMConfig) error {
	switch llm.Provider {
	case "openai", "anthropic":
	case "":
		return fmt.Errorf("llm provider is required")
	default:
		return fmt.Errorf("invalid llm provider %s (must be: openai, anthropic)", llm.Provider)
	}

	if llm.APIKey == "" {
		return fmt.Errorf("llm api_key is required")
	}
	// Key prefix checks are skipped for custom endpoints, which often
	// use proxy-issued keys.
	if llm.BaseURL == "" {
		switch llm.Provider {
		case "anthropic":
			if !strings.HasPrefix(llm.APIKey, "sk-ant-") {
				return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
			}
		case "openai":
			if !strings.HasPrefix(llm.APIKey, "sk-") {
				return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
			}
		}
	}

	if llm.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	return nil
}

// validateServer checks one agent's MCP server settings.
func validateServer(agent string, server ServerConfig) error {
	switch server.Transport {
	case "stdio", "":
		if server.Command == "" {
			return fmt.Errorf("agent %s: server command is required for stdio transport", agent)
		}
	case "websocket":
		if server.URL == "" {
			return fmt.Errorf("agent %s: server url is required for websocket transport", agent)
		}
		if !strings.HasPrefix(server.URL, "ws://") && !strings.HasPrefix(server.URL, "wss://") {
			return fmt.Errorf("agent %s: server url must use ws:// or wss://", agent)
		}
	default:
		return fmt.Errorf("agent %s: invalid transport %s (must be: stdio, websocket)", agent, server.Transport)
	}
	return nil
}

// ValidateLogLevel validates a log level name.
func ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}
