// Package tokens provides token counting for context budgeting.
package tokens

import (
	"github.com/hayahq/haya/pkg/models"
)

// Counter estimates token usage for text and message lists.
type Counter interface {
	// Count returns the token estimate for a piece of text.
	Count(text string) int

	// CountMessage returns the token estimate for one message, including
	// framing overhead.
	CountMessage(msg models.Message) int

	// CountMessages returns the token estimate for a message list, including
	// per-message framing overhead.
	CountMessages(msgs []models.Message) int
}

// messageOverhead covers role and framing tokens per message.
const messageOverhead = 4

// SimpleCounter is a deterministic character-based estimator: one token per
// four bytes, rounded up. Cheap enough to run on every request.
type SimpleCounter struct{}

// NewSimpleCounter returns the reference Counter implementation.
func NewSimpleCounter() *SimpleCounter {
	return &SimpleCounter{}
}

func (SimpleCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

func (c SimpleCounter) CountMessages(msgs []models.Message) int {
	total := 0
	for _, msg := range msgs {
		total += c.Count(msg.Content) + messageOverhead
	}
	return total
}

// CountMessage returns the estimate for a single message.
func (c SimpleCounter) CountMessage(msg models.Message) int {
	return c.Count(msg.Content) + messageOverhead
}
