package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/parley/pkg/mcpbridge"
)

// DefaultMaxRounds bounds the tool-calling loop when the config does
// not say otherwise.
const DefaultMaxRounds = 10

// ToolBridge is the slice of the MCP bridge the runner needs: the
// discovered tool catalog and serialized invocation.
type ToolBridge interface {
	Tools() []mcpbridge.ToolDescriptor
	Invoke(ctx context.Context, tool string, args map[string]interface{}) (string, error)
}

// Runner fronts one ToolBridge as a named dispatch handler. Each
// Invoke runs a fresh tool-calling conversation until the model stops
// requesting tools or the round limit is hit.
type Runner struct {
	name         string
	provider     LLMProvider
	model        string
	instructions string
	bridge       ToolBridge
	allowed      map[string]bool
	maxRounds    int
	temperature  float64
	maxTokens    int
	logger       zerolog.Logger
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Name         string
	Provider     LLMProvider
	Model        string
	Instructions string
	Bridge       ToolBridge
	AllowedTools []string // empty means every discovered tool
	MaxRounds    int
	Temperature  float64
	MaxTokens    int
	Logger       zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("runner name is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("runner %s: provider is required", cfg.Name)
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("runner %s: bridge is required", cfg.Name)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	var allowed map[string]bool
	if len(cfg.AllowedTools) > 0 {
		allowed = make(map[string]bool, len(cfg.AllowedTools))
		for _, name := range cfg.AllowedTools {
			allowed[name] = true
		}
	}
	return &Runner{
		name:         cfg.Name,
		provider:     cfg.Provider,
		model:        cfg.Model,
		instructions: cfg.Instructions,
		bridge:       cfg.Bridge,
		allowed:      allowed,
		maxRounds:    cfg.MaxRounds,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		logger:       cfg.Logger.With().Str("handler", cfg.Name).Logger(),
	}, nil
}

// Name returns the handler name.
func (r *Runner) Name() string { return r.name }

// Invoke runs the tool-calling loop for one task. Tool failures are
// fed back to the model as tool results; provider failures fail the
// invocation.
func (r *Runner) Invoke(ctx context.Context, task string) (string, error) {
	tools := r.toolDefinitions()
	messages := []Message{{Role: "user", Content: task}}

	r.logger.Debug().
		Int("tools", len(tools)).
		Msg("Starting agent run")

	for round := 0; round < r.maxRounds; round++ {
		response, err := r.provider.Call(ctx, Request{
			Model:        r.model,
			SystemPrompt: r.instructions,
			Messages:     messages,
			Tools:        tools,
			Temperature:  r.temperature,
			MaxTokens:    r.maxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("%s: model call failed: %w", r.name, err)
		}

		if len(response.ToolCalls) == 0 {
			r.logger.Debug().
				Int("rounds", round+1).
				Msg("Agent run complete")
			return response.Content, nil
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, tc := range response.ToolCalls {
			result, err := r.bridge.Invoke(ctx, tc.Name, tc.Parameters)
			if err != nil {
				r.logger.Warn().
					Err(err).
					Str("tool", tc.Name).
					Msg("Tool invocation failed")
				result = fmt.Sprintf("Error: %v", err)
			}
			messages = append(messages, Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", fmt.Errorf("%s: tool loop exceeded %d rounds", r.name, r.maxRounds)
}

func (r *Runner) toolDefinitions() []ToolDefinition {
	descriptors := r.bridge.Tools()
	defs := make([]ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		if r.allowed != nil && !r.allowed[d.Name] {
			continue
		}
		defs = append(defs, ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return defs
}
