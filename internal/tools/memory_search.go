package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hayahq/haya/internal/agent"
	"github.com/hayahq/haya/internal/memory"
)

// maxResultContentChars truncates long memories in tool output so one
// verbose entry does not crowd the model's context.
const maxResultContentChars = 500

// MemorySearchTool retrieves relevant memories through hybrid search.
type MemorySearchTool struct {
	manager *memory.Manager
}

// NewMemorySearchTool creates the tool.
func NewMemorySearchTool(manager *memory.Manager) *MemorySearchTool {
	return &MemorySearchTool{manager: manager}
}

func (t *MemorySearchTool) Name() string { return "memory_search" }

func (t *MemorySearchTool) Description() string {
	return "Searches saved memories for facts relevant to a query. " +
		"Combines semantic and keyword matching."
}

type memorySearchArgs struct {
	Query    string  `json:"query" jsonschema:"description=What to look for"`
	Limit    int     `json:"limit,omitempty" jsonschema:"description=Maximum number of results; default 10"`
	MinScore float64 `json:"minScore,omitempty" jsonschema:"description=Minimum combined relevance score from 0 to 1"`
}

func (t *MemorySearchTool) Schema() map[string]any {
	return reflectSchema(&memorySearchArgs{})
}

func (t *MemorySearchTool) DefaultPolicy() agent.DefaultPolicy { return agent.PolicyAllow }

// Execute runs the search and returns results as JSON.
func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.manager == nil {
		return "", errors.New("memory store is not configured")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return "", errors.New("query is required")
	}

	opts := memory.SearchOptions{}
	if limit, ok := args["limit"].(float64); ok {
		opts.Limit = int(limit)
	}
	if minScore, ok := args["minScore"].(float64); ok {
		opts.MinScore = minScore
	}

	results, err := t.manager.Search(ctx, query, opts)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No matching memories found.", nil
	}

	for i := range results {
		if len(results[i].Content) > maxResultContentChars {
			results[i].Content = results[i].Content[:maxResultContentChars] + "..."
		}
	}
	out, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
