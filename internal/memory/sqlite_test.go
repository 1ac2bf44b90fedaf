package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hayahq/haya/pkg/models"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteDBSaveGetDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entry := &models.MemoryEntry{
		Content:   "user prefers dark mode",
		Source:    "assistant",
		Metadata:  map[string]any{"sessionId": "s1"},
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	if err := db.Save(ctx, entry); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatal("Save() did not assign an id")
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("Save() did not fill CreatedAt")
	}

	got, err := db.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Content != entry.Content || got.Source != "assistant" {
		t.Errorf("got = %+v", got)
	}
	if got.Metadata["sessionId"] != "s1" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != 0.2 {
		t.Errorf("embedding = %+v", got.Embedding)
	}

	if err := db.Delete(ctx, entry.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := db.GetByID(ctx, entry.ID); !errors.Is(err, ErrMemoryNotFound) {
		t.Errorf("GetByID after delete = %v, want ErrMemoryNotFound", err)
	}
	if err := db.Delete(ctx, entry.ID); !errors.Is(err, ErrMemoryNotFound) {
		t.Errorf("second Delete = %v, want ErrMemoryNotFound", err)
	}
}

func TestSQLiteDBSaveUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entry := &models.MemoryEntry{ID: "m1", Content: "original"}
	if err := db.Save(ctx, entry); err != nil {
		t.Fatal(err)
	}
	entry.Content = "updated"
	if err := db.Save(ctx, entry); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetByID(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "updated" {
		t.Errorf("Content = %q", got.Content)
	}
}

func TestSQLiteDBSaveRequiresContent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Save(context.Background(), &models.MemoryEntry{}); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestSQLiteDBSearchText(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []models.MemoryEntry{
		{ID: "m1", Content: "the user drinks coffee every morning"},
		{ID: "m2", Content: "coffee coffee coffee is their favorite"},
		{ID: "m3", Content: "they have a cat named Ink"},
	}
	for i := range seed {
		if err := db.Save(ctx, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := db.SearchText(ctx, "coffee", 10)
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	for _, hit := range hits {
		if hit.ID == "m3" {
			t.Error("non-matching entry returned")
		}
		if hit.Rank >= 0 {
			t.Errorf("match rank = %v, want negative", hit.Rank)
		}
	}

	// Updated content is reindexed.
	seed[2].Content = "they switched from tea to coffee"
	if err := db.Save(ctx, &seed[2]); err != nil {
		t.Fatal(err)
	}
	hits, err = db.SearchText(ctx, "coffee", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Errorf("got %d hits after update, want 3", len(hits))
	}

	// Deleted content drops out.
	if err := db.Delete(ctx, "m2"); err != nil {
		t.Fatal(err)
	}
	hits, err = db.SearchText(ctx, "coffee", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, hit := range hits {
		if hit.ID == "m2" {
			t.Error("deleted entry still indexed")
		}
	}
}

func TestSQLiteDBSearchTextQuoting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.Save(ctx, &models.MemoryEntry{ID: "m1", Content: "likes c++ and rust"}); err != nil {
		t.Fatal(err)
	}

	// Operators and quotes in user text must not break the query.
	for _, query := range []string{`"unbalanced`, "NOT AND OR", "a -b (c)", ""} {
		if _, err := db.SearchText(ctx, query, 5); err != nil {
			t.Errorf("SearchText(%q) error = %v", query, err)
		}
	}
}

func TestSQLiteDBListEmbeddings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entries := []models.MemoryEntry{
		{ID: "m1", Content: "first", Embedding: []float32{1, 0}},
		{ID: "m2", Content: "lexical only"},
		{ID: "m3", Content: "third", Embedding: []float32{0, 1}},
	}
	for i := range entries {
		if err := db.Save(ctx, &entries[i]); err != nil {
			t.Fatal(err)
		}
	}

	stored, err := db.ListEmbeddings(ctx)
	if err != nil {
		t.Fatalf("ListEmbeddings() error = %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(stored))
	}
	if stored[0].ID != "m1" || stored[1].ID != "m3" {
		t.Errorf("order = %s, %s, want insertion order", stored[0].ID, stored[1].ID)
	}
	if len(stored[0].Embedding) != 2 || stored[0].Embedding[0] != 1 {
		t.Errorf("embedding = %+v", stored[0].Embedding)
	}
}

func TestManagerLoadIndexRebuildsVectorSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatal(err)
	}
	seed := []models.MemoryEntry{
		{ID: "m1", Content: "espresso every morning", Embedding: []float32{1, 0}},
		{ID: "m2", Content: "allergic to peanuts", Embedding: []float32{0, 1}},
	}
	for i := range seed {
		if err := db.Save(ctx, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	// A fresh process starts with an empty index; LoadIndex restores it
	// from the store.
	db, err = NewSQLiteDB(path)
	if err != nil {
		t.Fatal(err)
	}
	index := NewBruteForceIndex(2)
	manager := NewManager(db, index, nil, nil, nil)
	t.Cleanup(func() { manager.Close() })

	if err := manager.LoadIndex(ctx); err != nil {
		t.Fatalf("LoadIndex() error = %v", err)
	}
	if index.Size() != 2 {
		t.Fatalf("index size = %d, want 2", index.Size())
	}
	hits, err := index.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "m1" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestSQLiteDBHybridEndToEnd(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	index := NewBruteForceIndex(2)

	entries := []models.MemoryEntry{
		{ID: "m1", Content: "enjoys espresso in the morning", Embedding: []float32{1, 0}},
		{ID: "m2", Content: "allergic to peanuts", Embedding: []float32{0, 1}},
	}
	for i := range entries {
		if err := db.Save(ctx, &entries[i]); err != nil {
			t.Fatal(err)
		}
		if err := index.Add(entries[i].ID, entries[i].Embedding); err != nil {
			t.Fatal(err)
		}
	}

	h := NewHybridSearcher(db, index, nil, nil)
	results, err := h.SearchWithEmbedding(ctx, "espresso", []float32{1, 0}, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].ID != "m1" {
		t.Errorf("results = %+v", results)
	}
}
