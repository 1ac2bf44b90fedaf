// Package sessions provides session persistence and token-budget-aware
// history management for the agent runtime.
package sessions

import (
	"context"
	"errors"

	"github.com/hayahq/haya/pkg/models"
)

// ErrSessionNotFound is returned by lookups of unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Store is the interface for session persistence. Message history is
// append-only from the caller's perspective; the underlying store may GC.
type Store interface {
	// GetSession returns session metadata, or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// ListSessions returns all known session ids.
	ListSessions(ctx context.Context) ([]string, error)

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage appends one message, creating the session on first write.
	AppendMessage(ctx context.Context, sessionID string, msg models.Message) error

	// AppendMessages appends a batch in order, creating the session on first
	// write. The batch is atomic: either all messages land or none do.
	AppendMessages(ctx context.Context, sessionID string, msgs []models.Message) error

	// GetMessages returns the full ordered message list. Unknown sessions
	// yield an empty slice, not an error.
	GetMessages(ctx context.Context, sessionID string) ([]models.Message, error)

	// MessageCount returns the number of stored messages, 0 for unknown
	// sessions.
	MessageCount(ctx context.Context, sessionID string) (int, error)

	// Close releases store resources.
	Close() error
}
