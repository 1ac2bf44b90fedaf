package agent

import (
	"context"
	"sync"
)

// Prompter asks a human (or another system) to approve a tool invocation.
// Used for tools whose effective rule is ask.
type Prompter interface {
	Approve(ctx context.Context, name string, args map[string]any) (bool, error)
}

// RulePolicyEngine is a PolicyEngine driven by per-tool rules with a
// configurable fallback. Rules are allow, deny, or ask; ask consults the
// attached Prompter and denies when none is attached.
type RulePolicyEngine struct {
	mu       sync.RWMutex
	rules    map[string]DefaultPolicy
	fallback DefaultPolicy
	prompter Prompter
}

// NewRulePolicyEngine creates an engine with the given fallback rule.
// An empty fallback defaults to allow.
func NewRulePolicyEngine(fallback DefaultPolicy) *RulePolicyEngine {
	if fallback == "" {
		fallback = PolicyAllow
	}
	return &RulePolicyEngine{
		rules:    make(map[string]DefaultPolicy),
		fallback: fallback,
	}
}

// SetRule sets the rule for one tool name.
func (e *RulePolicyEngine) SetRule(name string, rule DefaultPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[name] = rule
}

// SetPrompter attaches the approval prompter used for ask rules.
func (e *RulePolicyEngine) SetPrompter(p Prompter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompter = p
}

// SeedDefaults copies each tool's suggested policy into the rule table
// without overwriting explicit rules.
func (e *RulePolicyEngine) SeedDefaults(tools []Tool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tool := range tools {
		if _, ok := e.rules[tool.Name()]; !ok {
			e.rules[tool.Name()] = tool.DefaultPolicy()
		}
	}
}

// CheckPolicy resolves the effective rule for name and returns the verdict.
func (e *RulePolicyEngine) CheckPolicy(ctx context.Context, name string, args map[string]any) Decision {
	e.mu.RLock()
	rule, ok := e.rules[name]
	if !ok {
		rule = e.fallback
	}
	prompter := e.prompter
	e.mu.RUnlock()

	switch rule {
	case PolicyAllow:
		return Decision{Allowed: true}
	case PolicyDeny:
		return Decision{Allowed: false, Reason: "denied by rule"}
	case PolicyAsk:
		if prompter == nil {
			return Decision{Allowed: false, Reason: "approval required"}
		}
		approved, err := prompter.Approve(ctx, name, args)
		if err != nil {
			return Decision{Allowed: false, Reason: "approval failed: " + err.Error()}
		}
		if !approved {
			return Decision{Allowed: false, Reason: "approval rejected"}
		}
		return Decision{Allowed: true}
	default:
		return Decision{Allowed: false, Reason: "unknown rule"}
	}
}
