package agent

import (
	"context"

	"github.com/rs/zerolog"
)

// Oracle wraps an LLM provider as a single-turn text-in text-out
// inference step, suitable for routing and synthesis.
type Oracle struct {
	provider     LLMProvider
	model        string
	instructions string
	temperature  float64
	maxTokens    int
	logger       zerolog.Logger
}

// OracleConfig configures an Oracle.
type OracleConfig struct {
	Provider     LLMProvider
	Model        string
	Instructions string
	Temperature  float64
	MaxTokens    int
	Logger       zerolog.Logger
}

// NewOracle creates an Oracle from a provider, model, and fixed
// instructions.
func NewOracle(cfg OracleConfig) *Oracle {
	return &Oracle{
		provider:     cfg.Provider,
		model:        cfg.Model,
		instructions: cfg.Instructions,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		logger:       cfg.Logger,
	}
}

// Infer makes one model call with the oracle's instructions as the
// system prompt and returns the text reply.
func (o *Oracle) Infer(ctx context.Context, prompt string) (string, error) {
	response, err := o.provider.Call(ctx, Request{
		Model:        o.model,
		SystemPrompt: o.instructions,
		Messages:     []Message{{Role: "user", Content: prompt}},
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
	})
	if err != nil {
		return "", err
	}

	if response.Usage != nil {
		o.logger.Debug().
			Str("model", o.model).
			Int("input_tokens", response.Usage.InputTokens).
			Int("output_tokens", response.Usage.OutputTokens).
			Msg("Oracle inference complete")
	}

	return response.Content, nil
}
