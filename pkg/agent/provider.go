package agent

import (
	"context"
	"fmt"
)

// LLMProvider is an interface for LLM API providers.
type LLMProvider interface {
	// Call makes one model API call.
	Call(ctx context.Context, request Request) (*Response, error)

	// Provider returns the provider name.
	Provider() string
}

// NewProvider creates an LLM provider from an auth profile.
func NewProvider(profile AuthProfile) (LLMProvider, error) {
	switch profile.Provider {
	case "openai":
		return NewOpenAIProvider(profile.APIKey, profile.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey, profile.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
