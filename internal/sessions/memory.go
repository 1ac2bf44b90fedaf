package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/hayahq/haya/pkg/models"
)

// MemoryStore provides an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		messages: map[string][]models.Message{},
	}
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	return m.AppendMessages(ctx, sessionID, []models.Message{msg})
}

func (m *MemoryStore) AppendMessages(ctx context.Context, sessionID string, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureSessionLocked(sessionID)
	for _, msg := range msgs {
		if msg.Timestamp == 0 {
			msg.Timestamp = time.Now().UnixMilli()
		}
		m.messages[sessionID] = append(m.messages[sessionID], msg)
	}
	m.sessions[sessionID].UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) MessageCount(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[sessionID]), nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) ensureSessionLocked(sessionID string) {
	if _, ok := m.sessions[sessionID]; ok {
		return
	}
	now := time.Now()
	m.sessions[sessionID] = &models.Session{ID: sessionID, CreatedAt: now, UpdatedAt: now}
}
