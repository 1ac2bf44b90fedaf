package sessions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hayahq/haya/pkg/models"
)

// storeUnderTest runs the Store contract against both implementations.
func storeUnderTest(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, build := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := build(t)

			t.Run("unknown session reads", func(t *testing.T) {
				msgs, err := store.GetMessages(ctx, "nope")
				if err != nil {
					t.Fatal(err)
				}
				if len(msgs) != 0 {
					t.Errorf("got %d messages, want 0", len(msgs))
				}
				count, err := store.MessageCount(ctx, "nope")
				if err != nil {
					t.Fatal(err)
				}
				if count != 0 {
					t.Errorf("count = %d, want 0", count)
				}
				if _, err := store.GetSession(ctx, "nope"); err != ErrSessionNotFound {
					t.Errorf("GetSession error = %v, want ErrSessionNotFound", err)
				}
			})

			t.Run("append creates session", func(t *testing.T) {
				msg := models.NewMessage(models.RoleUser, "hello")
				if err := store.AppendMessage(ctx, "s1", msg); err != nil {
					t.Fatal(err)
				}
				session, err := store.GetSession(ctx, "s1")
				if err != nil {
					t.Fatalf("session should exist after first append: %v", err)
				}
				if session.ID != "s1" {
					t.Errorf("session id = %q", session.ID)
				}
			})

			t.Run("ordering and round trip", func(t *testing.T) {
				batch := []models.Message{
					{
						Role:    models.RoleAssistant,
						Content: "let me check",
						ToolCalls: []models.ToolCall{
							{ID: "c1", Name: "memory_search", Arguments: `{"query":"x"}`},
						},
						Timestamp: 100,
					},
					{Role: models.RoleTool, Content: "found it", ToolCallID: "c1", Timestamp: 101},
				}
				if err := store.AppendMessages(ctx, "s1", batch); err != nil {
					t.Fatal(err)
				}

				msgs, err := store.GetMessages(ctx, "s1")
				if err != nil {
					t.Fatal(err)
				}
				if len(msgs) != 3 {
					t.Fatalf("got %d messages, want 3", len(msgs))
				}
				assistant := msgs[1]
				if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Name != "memory_search" {
					t.Errorf("tool calls did not round-trip: %+v", assistant.ToolCalls)
				}
				if msgs[2].ToolCallID != "c1" {
					t.Errorf("tool call id = %q, want c1", msgs[2].ToolCallID)
				}
			})

			t.Run("count and list", func(t *testing.T) {
				count, err := store.MessageCount(ctx, "s1")
				if err != nil {
					t.Fatal(err)
				}
				if count != 3 {
					t.Errorf("count = %d, want 3", count)
				}
				ids, err := store.ListSessions(ctx)
				if err != nil {
					t.Fatal(err)
				}
				if len(ids) != 1 || ids[0] != "s1" {
					t.Errorf("ids = %v, want [s1]", ids)
				}
			})

			t.Run("delete", func(t *testing.T) {
				if err := store.DeleteSession(ctx, "s1"); err != nil {
					t.Fatal(err)
				}
				if err := store.DeleteSession(ctx, "s1"); err != ErrSessionNotFound {
					t.Errorf("second delete error = %v, want ErrSessionNotFound", err)
				}
				count, err := store.MessageCount(ctx, "s1")
				if err != nil {
					t.Fatal(err)
				}
				if count != 0 {
					t.Errorf("count after delete = %d, want 0", count)
				}
			})
		})
	}
}
