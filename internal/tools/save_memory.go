// Package tools holds the built-in tools offered to the model.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/hayahq/haya/internal/agent"
	"github.com/hayahq/haya/internal/memory"
	"github.com/hayahq/haya/pkg/models"
)

// SaveMemoryTool persists a durable fact into the memory store. It is
// the tool the memory-flush turn asks the model to use.
type SaveMemoryTool struct {
	manager *memory.Manager
}

// NewSaveMemoryTool creates the tool.
func NewSaveMemoryTool(manager *memory.Manager) *SaveMemoryTool {
	return &SaveMemoryTool{manager: manager}
}

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Saves a durable memory about the user or conversation for future sessions. " +
		"Use for facts, preferences, and decisions worth remembering."
}

type saveMemoryArgs struct {
	Content string `json:"content" jsonschema:"description=The fact to remember phrased as a standalone statement"`
	Source  string `json:"source,omitempty" jsonschema:"description=Where the fact came from such as user or assistant"`
}

func (t *SaveMemoryTool) Schema() map[string]any {
	return reflectSchema(&saveMemoryArgs{})
}

func (t *SaveMemoryTool) DefaultPolicy() agent.DefaultPolicy { return agent.PolicyAllow }

// Execute saves the memory and reports its id.
func (t *SaveMemoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.manager == nil {
		return "", errors.New("memory store is not configured")
	}
	content, _ := args["content"].(string)
	if content == "" {
		return "", errors.New("content is required")
	}
	source, _ := args["source"].(string)
	if source == "" {
		source = "assistant"
	}

	entry := &models.MemoryEntry{Content: content, Source: source}
	if err := t.manager.Save(ctx, entry); err != nil {
		return "", err
	}
	return fmt.Sprintf("Memory saved with id %s", entry.ID), nil
}
