package sessions

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/hayahq/haya/internal/tokens"
	"github.com/hayahq/haya/pkg/models"
)

func newTestManager(t *testing.T, maxHistory int) *Manager {
	t.Helper()
	return NewManager(NewMemoryStore(), tokens.NewSimpleCounter(), maxHistory)
}

func seedMessages(t *testing.T, m *Manager, sessionID string, n int, contentLen int) {
	t.Helper()
	msgs := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs = append(msgs, models.Message{
			Role:      role,
			Content:   strings.Repeat("x", contentLen),
			Timestamp: int64(i + 1),
		})
	}
	if err := m.AddMessages(context.Background(), sessionID, msgs); err != nil {
		t.Fatal(err)
	}
}

func TestGetHistoryUnknownSession(t *testing.T) {
	m := newTestManager(t, 0)
	got, err := m.GetHistory(context.Background(), "missing", HistoryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

func TestGetHistoryCountTrim(t *testing.T) {
	m := newTestManager(t, 5)
	seedMessages(t, m, "s1", 12, 4)

	got, err := m.GetHistory(context.Background(), "s1", HistoryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5", len(got))
	}
	if got[0].Timestamp != 8 {
		t.Errorf("first kept timestamp = %d, want 8", got[0].Timestamp)
	}
	if got[4].Timestamp != 12 {
		t.Errorf("last kept timestamp = %d, want 12", got[4].Timestamp)
	}
}

func TestGetHistoryDeterministic(t *testing.T) {
	m := newTestManager(t, 0)
	seedMessages(t, m, "s1", 30, 400)

	opts := HistoryOptions{MaxTokens: 6000, SystemPromptTokens: 100, ContextPruning: true}
	first, err := m.GetHistory(context.Background(), "s1", opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.GetHistory(context.Background(), "s1", opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !reflect.DeepEqual(first[i], second[i]) {
			t.Errorf("message %d differs between identical calls", i)
		}
	}
}

func TestCompactionKeepsRecentTail(t *testing.T) {
	m := newTestManager(t, 0)
	// 400 chars = 100 tokens + 4 overhead = 104 tokens per message.
	seedMessages(t, m, "s1", 40, 400)

	// budget = 6000 - 100 - 4096 = 1804 tokens, enough for 17 messages.
	got, err := m.GetHistory(context.Background(), "s1", HistoryOptions{
		MaxTokens:          6000,
		SystemPromptTokens: 100,
		ContextPruning:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 17 {
		t.Fatalf("got %d messages, want 17", len(got))
	}
	if got[len(got)-1].Timestamp != 40 {
		t.Errorf("most recent message must survive, got timestamp %d", got[len(got)-1].Timestamp)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatal("compaction must preserve relative order")
		}
	}
}

func TestCompactionTinyBudgetKeepsLastTen(t *testing.T) {
	m := newTestManager(t, 0)
	seedMessages(t, m, "s1", 40, 400)

	got, err := m.GetHistory(context.Background(), "s1", HistoryOptions{
		MaxTokens:          100, // budget goes negative
		SystemPromptTokens: 50,
		ContextPruning:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d messages, want the last 10 regardless of budget", len(got))
	}
	if got[0].Timestamp != 31 {
		t.Errorf("first kept timestamp = %d, want 31", got[0].Timestamp)
	}
}

func TestCompactionDisabledWithoutPruning(t *testing.T) {
	m := newTestManager(t, 0)
	seedMessages(t, m, "s1", 40, 400)

	got, err := m.GetHistory(context.Background(), "s1", HistoryOptions{
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 40 {
		t.Errorf("got %d messages, want all 40 with pruning off", len(got))
	}
}

func TestCompactionNeverSplitsToolPair(t *testing.T) {
	m := newTestManager(t, 0)
	pad := strings.Repeat("x", 400)
	msgs := []models.Message{}
	for i := 0; i < 20; i++ {
		msgs = append(msgs, models.Message{Role: models.RoleUser, Content: pad, Timestamp: int64(i + 1)})
	}
	// An assistant tool call followed by its result, then a tail of plain turns.
	msgs = append(msgs,
		models.Message{
			Role:      models.RoleAssistant,
			Content:   pad,
			ToolCalls: []models.ToolCall{{ID: "call-1", Name: "save_memory", Arguments: "{}"}},
			Timestamp: 21,
		},
		models.Message{Role: models.RoleTool, Content: pad, ToolCallID: "call-1", Timestamp: 22},
	)
	for i := 0; i < 12; i++ {
		msgs = append(msgs, models.Message{Role: models.RoleUser, Content: pad, Timestamp: int64(23 + i)})
	}
	if err := m.AddMessages(context.Background(), "s1", msgs); err != nil {
		t.Fatal(err)
	}

	// Budget of 5496-4096-0 = 1400 tokens keeps 13 messages: the cut would
	// land on the tool result, which must pull in its assistant call.
	got, err := m.GetHistory(context.Background(), "s1", HistoryOptions{
		MaxTokens:      5496,
		ContextPruning: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, msg := range got {
		if msg.Role != models.RoleTool {
			continue
		}
		found := false
		for j := 0; j < i; j++ {
			for _, call := range got[j].ToolCalls {
				if call.ID == msg.ToolCallID {
					found = true
				}
			}
		}
		if !found {
			t.Fatalf("tool result %q kept without its assistant tool call", msg.ToolCallID)
		}
	}
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
	lastLen int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, msgs []models.Message) (string, error) {
	f.calls++
	f.lastLen = len(msgs)
	return f.summary, f.err
}

func TestCompactionWithSummarizer(t *testing.T) {
	m := newTestManager(t, 0)
	seedMessages(t, m, "s1", 40, 400)

	summarizer := &fakeSummarizer{summary: "user prefers terse answers"}
	got, err := m.GetHistory(context.Background(), "s1", HistoryOptions{
		MaxTokens:          6000,
		SystemPromptTokens: 100,
		ContextPruning:     true,
		Summarizer:         summarizer,
	})
	if err != nil {
		t.Fatal(err)
	}
	if summarizer.calls != 1 {
		t.Fatalf("summarizer calls = %d, want 1", summarizer.calls)
	}
	if summarizer.lastLen != 23 {
		t.Errorf("summarized %d messages, want the 23 dropped", summarizer.lastLen)
	}
	if got[0].Role != models.RoleSystem {
		t.Fatalf("first message role = %s, want system summary", got[0].Role)
	}
	if !strings.Contains(got[0].Content, "user prefers terse answers") {
		t.Errorf("summary content missing: %q", got[0].Content)
	}
	if len(got) != 18 {
		t.Errorf("got %d messages, want 17 kept + 1 summary", len(got))
	}
}

func TestCompactionSummarizerErrorFallsBackToTruncation(t *testing.T) {
	m := newTestManager(t, 0)
	seedMessages(t, m, "s1", 40, 400)

	summarizer := &fakeSummarizer{err: errors.New("provider down")}
	got, err := m.GetHistory(context.Background(), "s1", HistoryOptions{
		MaxTokens:          6000,
		SystemPromptTokens: 100,
		ContextPruning:     true,
		Summarizer:         summarizer,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 17 {
		t.Fatalf("got %d messages, want plain truncation to 17", len(got))
	}
	if got[0].Role == models.RoleSystem {
		t.Error("no summary message should be inserted on summarizer failure")
	}
}

func TestFlushCycleResetOnCompaction(t *testing.T) {
	m := newTestManager(t, 0)
	seedMessages(t, m, "s1", 40, 400)

	m.MarkFlushRun("s1")
	if !m.FlushHasRun("s1") {
		t.Fatal("flush should be marked as run")
	}

	// A compacting read starts a new cycle.
	if _, err := m.GetHistory(context.Background(), "s1", HistoryOptions{
		MaxTokens:          6000,
		SystemPromptTokens: 100,
		ContextPruning:     true,
	}); err != nil {
		t.Fatal(err)
	}
	if m.FlushHasRun("s1") {
		t.Error("flush flag should reset after compaction")
	}
}

func TestConcurrentAddMessagesLinearized(t *testing.T) {
	m := newTestManager(t, 0)
	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				msg := models.NewMessage(models.RoleUser, fmt.Sprintf("w%d-%d", w, i))
				if err := m.AddMessage(context.Background(), "s1", msg); err != nil {
					t.Error(err)
				}
			}
		}(w)
	}
	wg.Wait()

	count, err := m.MessageCount(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if count != writers*perWriter {
		t.Errorf("count = %d, want %d", count, writers*perWriter)
	}
}
