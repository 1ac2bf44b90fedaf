package models

import (
	"time"
)

// MemoryEntry is one persisted fact in the memory store. An entry may carry a
// dense embedding (reachable by vector search), lexical text (reachable by
// FTS), or both; at least one must be present.
type MemoryEntry struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Source    string         `json:"source"` // e.g. "assistant", "user", "auto"
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

// MemorySearchResult is one scored hit from hybrid memory search.
type MemorySearchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
