package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements LLMProvider for Anthropic Claude.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

// Provider returns the provider name.
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Call makes an API call to Anthropic Claude.
func (p *AnthropicProvider) Call(ctx context.Context, request Request) (*Response, error) {
	anthropicMessages := []anthropic.MessageParam{}

	for _, msg := range request.Messages {
		switch {
		case msg.Role == "system":
			continue // handled via the System field
		case msg.Role == "tool":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Parameters, tc.Name))
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case msg.Role == "assistant":
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		default:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	maxTokens := request.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(maxTokens),
	}
	if request.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{{Text: request.SystemPrompt}}
	}
	if request.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range request.Tools {
			var schema map[string]interface{}
			if len(tool.InputSchema) > 0 {
				if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
					return nil, fmt.Errorf("failed to parse schema for tool %s: %w", tool.Name, err)
				}
			}

			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			}
			if required, ok := schema["required"].([]interface{}); ok {
				strs := make([]string, len(required))
				for i, v := range required {
					strs[i], _ = v.(string)
				}
				toolParam.InputSchema.Required = strs
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, err
	}

	content := ""
	toolCalls := []ToolCall{}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var params map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &params); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:         b.ID,
				Name:       b.Name,
				Parameters: params,
			})
		}
	}

	return &Response{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}
