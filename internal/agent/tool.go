// Package agent provides the tool registry, policy gating, memory-flush
// trigger, and the model runtime that ties them together.
package agent

import "context"

// DefaultPolicy is a tool's own suggestion for how invocations should be
// treated. The attached policy engine is authoritative; the default only
// informs it.
type DefaultPolicy string

const (
	PolicyAllow DefaultPolicy = "allow"
	PolicyDeny  DefaultPolicy = "deny"
	PolicyAsk   DefaultPolicy = "ask"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	// Name is the unique registry key.
	Name() string

	// Description is shown to the model when advertising the tool.
	Description() string

	// Schema returns the JSON schema for the tool's arguments.
	Schema() map[string]any

	// DefaultPolicy suggests how invocations should be gated.
	DefaultPolicy() DefaultPolicy

	// Execute runs the tool with decoded arguments and returns its output
	// text. Failures are returned as errors; the registry converts them to
	// error-shaped results.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Decision is a policy engine verdict for one tool invocation.
type Decision struct {
	Allowed bool
	Reason  string
}

// PolicyEngine decides whether a tool invocation may proceed.
type PolicyEngine interface {
	CheckPolicy(ctx context.Context, name string, args map[string]any) Decision
}
