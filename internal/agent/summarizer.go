package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hayahq/haya/pkg/models"
)

const summaryPrompt = `Summarize the following conversation concisely, preserving:
- Key decisions and outcomes
- Important context and facts
- User preferences mentioned
- Any pending tasks or action items`

// ProviderSummarizer condenses dropped history through the chat provider.
// It satisfies the history manager's Summarizer interface.
type ProviderSummarizer struct {
	provider Provider
	model    string
}

// NewProviderSummarizer creates a summarizer using the given model.
func NewProviderSummarizer(provider Provider, model string) *ProviderSummarizer {
	return &ProviderSummarizer{provider: provider, model: model}
}

// Summarize renders the messages as a transcript and asks the model for a
// summary. No tools are offered; the call is a single round.
func (s *ProviderSummarizer) Summarize(ctx context.Context, msgs []models.Message) (string, error) {
	if len(msgs) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, msg := range msgs {
		if msg.Content == "" {
			continue
		}
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, msg.Content)
	}

	resp, err := s.provider.Stream(ctx, ProviderRequest{
		Model:        s.model,
		SystemPrompt: summaryPrompt,
		Messages: []models.Message{
			models.NewMessage(models.RoleUser, transcript.String()),
		},
	}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
