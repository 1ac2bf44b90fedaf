package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/pkg/models"
)

type stubTool struct {
	name    string
	policy  DefaultPolicy
	execute func(ctx context.Context, args map[string]any) (string, error)
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub tool " + t.name }
func (t *stubTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *stubTool) DefaultPolicy() DefaultPolicy {
	if t.policy == "" {
		return PolicyAllow
	}
	return t.policy
}
func (t *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.execute != nil {
		return t.execute(ctx, args)
	}
	return "ok", nil
}

type denyAllPolicy struct{ reason string }

func (p denyAllPolicy) CheckPolicy(ctx context.Context, name string, args map[string]any) Decision {
	return Decision{Allowed: false, Reason: p.reason}
}

func TestToolRegistryRegister(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(&stubTool{name: "echo"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if !reg.Has("echo") {
		t.Error("Has(echo) = false, want true")
	}
	if reg.Size() != 1 {
		t.Errorf("Size() = %d, want 1", reg.Size())
	}

	reg.Unregister("echo")
	if reg.Has("echo") {
		t.Error("tool still present after Unregister")
	}
}

func TestToolRegistryListSorted(t *testing.T) {
	reg := NewToolRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}
	list := reg.List()
	want := []string{"alpha", "mid", "zeta"}
	for i, tool := range list {
		if tool.Name() != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, tool.Name(), want[i])
		}
	}
}

func TestToolRegistryExecute(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(reg *ToolRegistry)
		call        models.ToolCall
		wantContent string
		wantIsError bool
	}{
		{
			name: "success",
			setup: func(reg *ToolRegistry) {
				reg.Register(&stubTool{name: "echo", execute: func(ctx context.Context, args map[string]any) (string, error) {
					return args["text"].(string), nil
				}})
			},
			call:        models.ToolCall{ID: "c1", Name: "echo", Arguments: `{"text":"hello"}`},
			wantContent: "hello",
		},
		{
			name:        "unknown tool",
			setup:       func(reg *ToolRegistry) {},
			call:        models.ToolCall{ID: "c2", Name: "missing", Arguments: "{}"},
			wantContent: "Tool not found: missing",
			wantIsError: true,
		},
		{
			name: "invalid arguments",
			setup: func(reg *ToolRegistry) {
				reg.Register(&stubTool{name: "echo"})
			},
			call:        models.ToolCall{ID: "c3", Name: "echo", Arguments: `{not json`},
			wantContent: "Invalid tool arguments: {not json",
			wantIsError: true,
		},
		{
			name: "empty arguments allowed",
			setup: func(reg *ToolRegistry) {
				reg.Register(&stubTool{name: "noop"})
			},
			call:        models.ToolCall{ID: "c4", Name: "noop"},
			wantContent: "ok",
		},
		{
			name: "policy denial with reason",
			setup: func(reg *ToolRegistry) {
				reg.Register(&stubTool{name: "danger"})
				reg.SetPolicyEngine(denyAllPolicy{reason: "not on the list"})
			},
			call:        models.ToolCall{ID: "c5", Name: "danger", Arguments: "{}"},
			wantContent: "Tool blocked by policy: not on the list",
			wantIsError: true,
		},
		{
			name: "policy denial without reason",
			setup: func(reg *ToolRegistry) {
				reg.Register(&stubTool{name: "danger"})
				reg.SetPolicyEngine(denyAllPolicy{})
			},
			call:        models.ToolCall{ID: "c6", Name: "danger", Arguments: "{}"},
			wantContent: "Tool blocked by policy: denied",
			wantIsError: true,
		},
		{
			name: "execution error",
			setup: func(reg *ToolRegistry) {
				reg.Register(&stubTool{name: "broken", execute: func(ctx context.Context, args map[string]any) (string, error) {
					return "", errors.New("disk full")
				}})
			},
			call:        models.ToolCall{ID: "c7", Name: "broken", Arguments: "{}"},
			wantContent: "Tool execution error: disk full",
			wantIsError: true,
		},
		{
			name: "panic recovered",
			setup: func(reg *ToolRegistry) {
				reg.Register(&stubTool{name: "panicky", execute: func(ctx context.Context, args map[string]any) (string, error) {
					panic("boom")
				}})
			},
			call:        models.ToolCall{ID: "c8", Name: "panicky", Arguments: "{}"},
			wantContent: "Tool execution error: boom",
			wantIsError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewToolRegistry()
			tt.setup(reg)

			result := reg.Execute(context.Background(), tt.call)
			if result.ToolCallID != tt.call.ID {
				t.Errorf("ToolCallID = %s, want %s", result.ToolCallID, tt.call.ID)
			}
			if result.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", result.Content, tt.wantContent)
			}
			if result.IsError != tt.wantIsError {
				t.Errorf("IsError = %v, want %v", result.IsError, tt.wantIsError)
			}
		})
	}
}

func TestToolRegistryExecuteWithTracer(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register(&stubTool{name: "echo", execute: func(ctx context.Context, args map[string]any) (string, error) {
		return "traced", nil
	}}); err != nil {
		t.Fatal(err)
	}
	tracer, shutdown := observability.NewTracer(observability.TraceConfig{})
	defer shutdown(context.Background())
	reg.SetTracer(tracer)

	result := reg.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "echo", Arguments: "{}"})
	if result.IsError || result.Content != "traced" {
		t.Fatalf("result = %+v", result)
	}

	// Error-shaped results still come back as results, not errors.
	result = reg.Execute(context.Background(), models.ToolCall{ID: "c2", Name: "missing", Arguments: "{}"})
	if !result.IsError || result.Content != "Tool not found: missing" {
		t.Fatalf("result = %+v", result)
	}
}

func TestToolRegistryExecuteAll(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&stubTool{name: "echo", execute: func(ctx context.Context, args map[string]any) (string, error) {
		return args["text"].(string), nil
	}})

	calls := []models.ToolCall{
		{ID: "a", Name: "echo", Arguments: `{"text":"first"}`},
		{ID: "b", Name: "missing", Arguments: "{}"},
		{ID: "c", Name: "echo", Arguments: `{"text":"third"}`},
	}
	results := reg.ExecuteAll(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Content != "first" || results[0].IsError {
		t.Errorf("results[0] = %+v", results[0])
	}
	if !results[1].IsError || !strings.Contains(results[1].Content, "Tool not found") {
		t.Errorf("results[1] = %+v", results[1])
	}
	if results[2].Content != "third" || results[2].ToolCallID != "c" {
		t.Errorf("results[2] = %+v", results[2])
	}
}
