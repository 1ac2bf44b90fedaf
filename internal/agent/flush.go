package agent

import (
	"github.com/hayahq/haya/pkg/models"
)

// Default prompts for the pre-compaction memory flush turn. Both are
// overridable through config.
const (
	DefaultFlushSystemPrompt = "Pre-compaction memory flush turn. Persist durable memories now; the conversation context is about to be compacted."

	DefaultFlushUserMessage = "Pre-compaction memory flush. The session is approaching context limits. " +
		"If there are important facts, decisions, or preferences from this conversation worth keeping, " +
		"use the save_memory tool to store them now. If nothing needs saving, reply with a brief acknowledgment."
)

// FlushParams feeds ShouldRunMemoryFlush.
type FlushParams struct {
	// TotalTokens is the token footprint of the session's full history.
	TotalTokens int

	// ContextWindowTokens is the model's context window.
	ContextWindowTokens int

	// ReserveTokens is headroom kept for the model response.
	ReserveTokens int

	// SoftThresholdTokens triggers the flush this far before hard compaction.
	SoftThresholdTokens int

	// HasRunForCycle is true once a flush ran in the current compaction
	// cycle; it resets when history is actually compacted.
	HasRunForCycle bool
}

// ShouldRunMemoryFlush decides whether a pre-compaction memory flush turn
// should run now.
func ShouldRunMemoryFlush(p FlushParams) bool {
	if p.TotalTokens <= 0 || p.HasRunForCycle {
		return false
	}
	threshold := p.ContextWindowTokens - p.ReserveTokens - p.SoftThresholdTokens
	if threshold <= 0 {
		return false
	}
	return p.TotalTokens >= threshold
}

// FlushPrompts carries the configured flush prompt overrides; empty fields
// use the defaults.
type FlushPrompts struct {
	SystemPrompt string
	UserMessage  string
}

// BuildFlushMessages returns the system and user messages for the flush turn.
func BuildFlushMessages(prompts FlushPrompts) (models.Message, models.Message) {
	systemPrompt := prompts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultFlushSystemPrompt
	}
	userMessage := prompts.UserMessage
	if userMessage == "" {
		userMessage = DefaultFlushUserMessage
	}
	return models.NewMessage(models.RoleSystem, systemPrompt),
		models.NewMessage(models.RoleUser, userMessage)
}
