package sessions

import (
	"context"
	"fmt"
	"sync"

	"github.com/hayahq/haya/internal/tokens"
	"github.com/hayahq/haya/pkg/models"
)

// Compaction parameters.
const (
	// DefaultMaxHistoryMessages caps how many messages are considered per
	// getHistory call before token budgeting.
	DefaultMaxHistoryMessages = 100

	// reserveForResponse is the token headroom left for the model's reply.
	reserveForResponse = 4096

	// recentMessageCount messages at the tail are always retained.
	recentMessageCount = 10
)

// Summarizer condenses a dropped history prefix into one summary text.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []models.Message) (string, error)
}

// HistoryOptions tunes one GetHistory call.
type HistoryOptions struct {
	// MaxTokens enables token-budget compaction when positive.
	MaxTokens int

	// SystemPromptTokens is subtracted from the budget for the prompt the
	// caller will prepend.
	SystemPromptTokens int

	// ContextPruning gates compaction; with it false the history is only
	// trimmed by message count.
	ContextPruning bool

	// Summarizer, when set, replaces the dropped prefix with a synthesized
	// summary message. When nil the prefix is silently truncated.
	Summarizer Summarizer
}

// Manager mediates all history reads and writes. Writes to one session are
// linearized through a per-session lock; reads are lock-free against the
// store's own consistency.
type Manager struct {
	store              Store
	counter            tokens.Counter
	maxHistoryMessages int
	locker             *SessionLocker
	flush              *flushCycles
}

// NewManager creates a history manager. maxHistoryMessages <= 0 uses the
// default of 100.
func NewManager(store Store, counter tokens.Counter, maxHistoryMessages int) *Manager {
	if maxHistoryMessages <= 0 {
		maxHistoryMessages = DefaultMaxHistoryMessages
	}
	return &Manager{
		store:              store,
		counter:            counter,
		maxHistoryMessages: maxHistoryMessages,
		locker:             NewSessionLocker(DefaultLockTimeout),
		flush:              newFlushCycles(),
	}
}

// AddMessage appends one message, creating the session on first write.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg models.Message) error {
	return m.AddMessages(ctx, sessionID, []models.Message{msg})
}

// AddMessages appends a batch in order. Concurrent calls for the same
// session are serialized.
func (m *Manager) AddMessages(ctx context.Context, sessionID string, msgs []models.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := m.locker.Lock(ctx, sessionID); err != nil {
		return err
	}
	defer m.locker.Unlock(sessionID)
	return m.store.AppendMessages(ctx, sessionID, msgs)
}

// MessageCount returns the stored message count, 0 for unknown sessions.
func (m *Manager) MessageCount(ctx context.Context, sessionID string) (int, error) {
	return m.store.MessageCount(ctx, sessionID)
}

// TotalTokens returns the token footprint of the full stored history.
func (m *Manager) TotalTokens(ctx context.Context, sessionID string) (int, error) {
	msgs, err := m.store.GetMessages(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return m.counter.CountMessages(msgs), nil
}

// GetHistory returns the messages a caller should send to the model.
// Unknown sessions yield an empty slice. The result is deterministic for a
// given store state and options.
func (m *Manager) GetHistory(ctx context.Context, sessionID string, opts HistoryOptions) ([]models.Message, error) {
	msgs, err := m.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []models.Message{}, nil
	}

	if len(msgs) > m.maxHistoryMessages {
		msgs = msgs[len(msgs)-m.maxHistoryMessages:]
	}

	if opts.MaxTokens <= 0 || !opts.ContextPruning {
		return msgs, nil
	}

	compacted, dropped := m.compact(ctx, msgs, opts)
	if dropped > 0 {
		// A new compaction cycle has begun; the next memory flush may run.
		m.flush.reset(sessionID)
	}
	return compacted, nil
}

// compact applies the token-budget contract: always keep the last
// recentMessageCount messages, then include older messages newest-first
// until the budget is exhausted, never splitting a tool_call/tool pair.
// Returns the compacted history and the number of dropped messages.
func (m *Manager) compact(ctx context.Context, msgs []models.Message, opts HistoryOptions) ([]models.Message, int) {
	budget := opts.MaxTokens - opts.SystemPromptTokens - reserveForResponse
	if len(msgs) <= recentMessageCount {
		return msgs, 0
	}

	cut := len(msgs) - recentMessageCount
	used := 0
	for _, msg := range msgs[cut:] {
		used += m.counter.CountMessage(msg)
	}

	for cut > 0 {
		cost := m.counter.CountMessage(msgs[cut-1])
		if used+cost > budget {
			break
		}
		used += cost
		cut--
	}

	// A tool result at the head of the kept range must keep the assistant
	// message that issued the call.
	for cut > 0 && msgs[cut].Role == models.RoleTool {
		cut--
	}

	if cut == 0 {
		return msgs, 0
	}

	kept := msgs[cut:]
	if opts.Summarizer == nil {
		out := make([]models.Message, len(kept))
		copy(out, kept)
		return out, cut
	}

	summary, err := opts.Summarizer.Summarize(ctx, msgs[:cut])
	if err != nil || summary == "" {
		// Summaries are best-effort; fall back to plain truncation.
		out := make([]models.Message, len(kept))
		copy(out, kept)
		return out, cut
	}

	out := make([]models.Message, 0, len(kept)+1)
	out = append(out, models.Message{
		Role:      models.RoleSystem,
		Content:   "[Conversation summary]\n" + summary,
		Timestamp: msgs[cut-1].Timestamp,
	})
	out = append(out, kept...)
	return out, cut
}

// MarkFlushRun records that the pre-compaction memory flush ran for the
// session's current compaction cycle.
func (m *Manager) MarkFlushRun(sessionID string) {
	m.flush.mark(sessionID)
}

// FlushHasRun reports whether the memory flush already ran this cycle.
func (m *Manager) FlushHasRun(sessionID string) bool {
	return m.flush.hasRun(sessionID)
}

// flushCycles tracks the per-session hasRunForCycle bit. It flips true when
// a flush runs and resets when the session's history is next compacted.
type flushCycles struct {
	mu  sync.Mutex
	ran map[string]bool
}

func newFlushCycles() *flushCycles {
	return &flushCycles{ran: map[string]bool{}}
}

func (f *flushCycles) mark(sessionID string) {
	f.mu.Lock()
	f.ran[sessionID] = true
	f.mu.Unlock()
}

func (f *flushCycles) reset(sessionID string) {
	f.mu.Lock()
	delete(f.ran, sessionID)
	f.mu.Unlock()
}

func (f *flushCycles) hasRun(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ran[sessionID]
}
