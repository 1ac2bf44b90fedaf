package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/hayahq/haya/internal/agent"
	"github.com/hayahq/haya/pkg/models"
)

// defaultAnthropicMaxTokens caps the response when the caller does not
// specify a limit.
const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements agent.Provider against the Anthropic
// Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// AnthropicOptions configures an AnthropicProvider.
type AnthropicOptions struct {
	APIKey  string
	BaseURL string
}

// NewAnthropicProvider creates a provider. The API key is required.
func NewAnthropicProvider(opts AnthropicOptions) (*AnthropicProvider, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(clientOpts...)}, nil
}

// Name identifies the provider in logs and metrics.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Stream runs one streaming completion. onDelta may be nil.
func (p *AnthropicProvider) Stream(ctx context.Context, req agent.ProviderRequest, onDelta func(delta string)) (*agent.ProviderResponse, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: defaultAnthropicMaxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.SystemPrompt},
		}
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	return consumeAnthropicStream(stream, onDelta)
}

func consumeAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], onDelta func(string)) (*agent.ProviderResponse, error) {
	resp := &agent.ProviderResponse{}
	var content strings.Builder
	var currentTool *models.ToolCall
	var currentInput strings.Builder

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			if start.Message.Usage.InputTokens > 0 {
				resp.Usage.InputTokens = int(start.Message.Usage.InputTokens)
			}

		case "content_block_start":
			blockStart := event.AsContentBlockStart()
			if blockStart.ContentBlock.Type == "tool_use" {
				toolUse := blockStart.ContentBlock.AsToolUse()
				currentTool = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content.WriteString(delta.Text)
					if onDelta != nil {
						onDelta(delta.Text)
					}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if currentTool != nil {
				args := currentInput.String()
				if args == "" {
					args = "{}"
				}
				currentTool.Arguments = args
				resp.ToolCalls = append(resp.ToolCalls, *currentTool)
				currentTool = nil
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				resp.Usage.OutputTokens = int(messageDelta.Usage.OutputTokens)
			}

		case "message_stop":
			resp.Content = content.String()
			return resp, nil
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream error: %w", err)
	}
	resp.Content = content.String()
	return resp, nil
}

// convertAnthropicMessages maps history into Anthropic message params.
// System messages are dropped here; the caller passes the system prompt
// separately. Tool results become tool_result blocks in user messages.
func convertAnthropicMessages(msgs []models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Role == models.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		} else if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		for _, tc := range msg.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertAnthropicTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		raw, err := json.Marshal(tool.Schema())
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, toolParam)
	}
	return result, nil
}
