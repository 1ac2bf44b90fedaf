package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/pkg/models"
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Execution failures never escape as errors; they become error-shaped
// ToolResults so one bad call cannot take down a turn.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	policy PolicyEngine
	tracer *observability.Tracer
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name fails.
func (r *ToolRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool is registered.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered tools sorted by name.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Size returns the number of registered tools.
func (r *ToolRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SetPolicyEngine attaches the authoritative policy engine. A nil engine
// allows everything.
func (r *ToolRegistry) SetPolicyEngine(engine PolicyEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = engine
}

// SetTracer attaches a tracer so each execution carries a span.
func (r *ToolRegistry) SetTracer(tracer *observability.Tracer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracer = tracer
}

// Execute runs one tool call to completion. All failure modes are reported
// in the result, never as a Go error.
func (r *ToolRegistry) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	r.mu.RLock()
	tracer := r.tracer
	r.mu.RUnlock()
	if tracer == nil {
		return r.execute(ctx, call)
	}

	ctx, span := tracer.StartTool(ctx, call.Name)
	defer span.End()
	result := r.execute(ctx, call)
	if result.IsError {
		observability.RecordError(span, errors.New(result.Content))
	}
	return result
}

func (r *ToolRegistry) execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	policy := r.policy
	r.mu.RUnlock()

	if !ok {
		return errorResult(call.ID, "Tool not found: "+call.Name)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResult(call.ID, "Invalid tool arguments: "+call.Arguments)
		}
	}

	if policy != nil {
		decision := policy.CheckPolicy(ctx, call.Name, args)
		if !decision.Allowed {
			reason := decision.Reason
			if reason == "" {
				reason = "denied"
			}
			return errorResult(call.ID, "Tool blocked by policy: "+reason)
		}
	}

	content, err := safeExecute(ctx, tool, args)
	if err != nil {
		return errorResult(call.ID, "Tool execution error: "+err.Error())
	}
	return models.ToolResult{ToolCallID: call.ID, Content: content}
}

// ExecuteAll runs every call in parallel and returns results in call order.
// One tool's failure never cancels the others.
func (r *ToolRegistry) ExecuteAll(ctx context.Context, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			results[i] = r.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// safeExecute converts tool panics into errors so a misbehaving tool cannot
// crash the gateway.
func safeExecute(ctx context.Context, tool Tool, args map[string]any) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return tool.Execute(ctx, args)
}

func errorResult(callID, content string) models.ToolResult {
	return models.ToolResult{ToolCallID: callID, Content: content, IsError: true}
}
