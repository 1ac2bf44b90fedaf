package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/pkg/models"
)

// maxToolRounds bounds provider round-trips within one chat turn so a model
// stuck requesting tools cannot loop forever.
const maxToolRounds = 8

// ChatRequest is one inbound user turn.
type ChatRequest struct {
	SessionID    string
	Message      string
	Model        string
	SystemPrompt string
}

// ChatResult is the completed assistant turn.
type ChatResult struct {
	Content string
	Usage   models.Usage
}

// Runtime produces assistant turns. onChunk receives streamed deltas;
// implementations must call it from a single goroutine.
type Runtime interface {
	Chat(ctx context.Context, req ChatRequest, history []models.Message, onChunk func(delta string)) (*ChatResult, error)
}

// ProviderRequest is one model API call.
type ProviderRequest struct {
	Model        string
	SystemPrompt string
	Messages     []models.Message
	Tools        []Tool
}

// ProviderResponse is the model's reply to one call.
type ProviderResponse struct {
	Content   string
	ToolCalls []models.ToolCall
	Usage     models.Usage
}

// Provider is a streaming chat-completion backend.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req ProviderRequest, onDelta func(delta string)) (*ProviderResponse, error)
}

// LLMRuntime drives a Provider through the tool loop: stream a response,
// execute any requested tools through the registry, feed results back, and
// repeat until the model answers in plain text.
type LLMRuntime struct {
	provider     Provider
	tools        *ToolRegistry
	logger       *observability.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	defaultModel string
	systemPrompt string
}

// RuntimeOptions configures an LLMRuntime.
type RuntimeOptions struct {
	Provider     Provider
	Tools        *ToolRegistry
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
	DefaultModel string
	SystemPrompt string
}

// NewLLMRuntime creates a runtime. Provider is required; Tools may be nil
// for a tool-less agent.
func NewLLMRuntime(opts RuntimeOptions) (*LLMRuntime, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if opts.Tracer == nil {
		opts.Tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}
	return &LLMRuntime{
		provider:     opts.Provider,
		tools:        opts.Tools,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		defaultModel: opts.DefaultModel,
		systemPrompt: opts.SystemPrompt,
	}, nil
}

// Chat runs one user turn to completion.
func (r *LLMRuntime) Chat(ctx context.Context, req ChatRequest, history []models.Message, onChunk func(delta string)) (*ChatResult, error) {
	model := req.Model
	if model == "" {
		model = r.defaultModel
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = r.systemPrompt
	}

	working := make([]models.Message, 0, len(history)+1)
	working = append(working, history...)
	working = append(working, models.NewMessage(models.RoleUser, req.Message))

	var tools []Tool
	if r.tools != nil {
		tools = r.tools.List()
	}

	usage := models.Usage{}
	for round := 0; round < maxToolRounds; round++ {
		start := time.Now()
		llmCtx, llmSpan := r.tracer.StartLLM(ctx, r.provider.Name(), model)
		resp, err := r.provider.Stream(llmCtx, ProviderRequest{
			Model:        model,
			SystemPrompt: systemPrompt,
			Messages:     working,
			Tools:        tools,
		}, onChunk)
		if err != nil {
			observability.RecordError(llmSpan, err)
		}
		llmSpan.End()
		if r.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
				if ctx.Err() != nil {
					status = "cancelled"
				}
			}
			var in, out int
			if resp != nil {
				in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
			}
			r.metrics.RecordLLMRequest(r.provider.Name(), model, status, time.Since(start).Seconds(), in, out)
		}
		if err != nil {
			return nil, err
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		if len(resp.ToolCalls) == 0 || r.tools == nil {
			return &ChatResult{Content: resp.Content, Usage: usage}, nil
		}

		r.logger.Debug(ctx, "executing tool calls", "count", len(resp.ToolCalls))
		results := r.tools.ExecuteAll(ctx, resp.ToolCalls)

		assistant := models.NewMessage(models.RoleAssistant, resp.Content)
		assistant.ToolCalls = resp.ToolCalls
		working = append(working, assistant)
		for _, result := range results {
			if r.metrics != nil {
				status := "success"
				if result.IsError {
					status = "error"
				}
				r.metrics.RecordToolExecution(toolNameForResult(resp.ToolCalls, result), status)
			}
			toolMsg := models.NewMessage(models.RoleTool, result.Content)
			toolMsg.ToolCallID = result.ToolCallID
			working = append(working, toolMsg)
		}
	}

	return nil, fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds)
}

func toolNameForResult(calls []models.ToolCall, result models.ToolResult) string {
	for _, call := range calls {
		if call.ID == result.ToolCallID {
			return call.Name
		}
	}
	return "unknown"
}
