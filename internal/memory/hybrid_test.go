package memory

import (
	"context"
	"math"
	"testing"

	"github.com/hayahq/haya/pkg/models"
)

// fakeDB serves canned text hits and entries.
type fakeDB struct {
	entries   map[string]*models.MemoryEntry
	textHits  []TextHit
	lastQuery string
	lastLimit int
}

func newFakeDB() *fakeDB {
	return &fakeDB{entries: make(map[string]*models.MemoryEntry)}
}

func (f *fakeDB) Save(ctx context.Context, entry *models.MemoryEntry) error {
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeDB) GetByID(ctx context.Context, id string) (*models.MemoryEntry, error) {
	entry, ok := f.entries[id]
	if !ok {
		return nil, ErrMemoryNotFound
	}
	return entry, nil
}

func (f *fakeDB) Delete(ctx context.Context, id string) error {
	delete(f.entries, id)
	return nil
}

func (f *fakeDB) SearchText(ctx context.Context, query string, limit int) ([]TextHit, error) {
	f.lastQuery = query
	f.lastLimit = limit
	if len(f.textHits) > limit {
		return f.textHits[:limit], nil
	}
	return f.textHits, nil
}

func (f *fakeDB) Close() error { return nil }

// fakeIndex serves canned vector hits.
type fakeIndex struct {
	hits      []VectorHit
	lastLimit int
}

func (f *fakeIndex) Add(id string, embedding []float32) error { return nil }
func (f *fakeIndex) Remove(id string)                         {}
func (f *fakeIndex) Search(embedding []float32, limit int) ([]VectorHit, error) {
	f.lastLimit = limit
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func addEntry(db *fakeDB, id, content string) {
	db.entries[id] = &models.MemoryEntry{ID: id, Content: content, Source: "test"}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestHybridSearchFusesBothModalities(t *testing.T) {
	db := newFakeDB()
	addEntry(db, "m1", "likes coffee")
	addEntry(db, "m2", "works remotely")
	addEntry(db, "m3", "has a dog")

	// m1 in both legs, m2 vector only, m3 text only.
	index := &fakeIndex{hits: []VectorHit{
		{ID: "m1", Distance: 0},
		{ID: "m2", Distance: 1},
	}}
	db.textHits = []TextHit{
		{ID: "m1", Rank: -2.5},
		{ID: "m3", Rank: 1.0},
	}

	h := NewHybridSearcher(db, index, nil, nil)
	results, err := h.SearchWithEmbedding(context.Background(), "coffee", []float32{1, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	// Default weights 0.7/0.3.
	// m1: 0.7*1/(1+0) + 0.3*1.0 = 1.0
	// m2: 0.7*1/(1+1) + 0      = 0.35
	// m3: 0 + 0.3*1/(1+1.0)    = 0.15
	want := []struct {
		id    string
		score float64
	}{
		{"m1", 1.0},
		{"m2", 0.35},
		{"m3", 0.15},
	}
	for i, w := range want {
		if results[i].ID != w.id || !almostEqual(results[i].Score, w.score) {
			t.Errorf("results[%d] = {%s %.4f}, want {%s %.4f}",
				i, results[i].ID, results[i].Score, w.id, w.score)
		}
	}

	// Candidate oversampling: limit 10 → 40 per leg.
	if index.lastLimit != 40 || db.lastLimit != 40 {
		t.Errorf("candidate limits = %d/%d, want 40/40", index.lastLimit, db.lastLimit)
	}
}

func TestHybridSearchTextOnly(t *testing.T) {
	db := newFakeDB()
	addEntry(db, "m1", "alpha")
	addEntry(db, "m2", "beta")
	db.textHits = []TextHit{
		{ID: "m1", Rank: -3},
		{ID: "m2", Rank: 0.5},
	}

	h := NewHybridSearcher(db, nil, nil, nil)
	results, err := h.SearchWithEmbedding(context.Background(), "alpha", nil, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Negative rank maps to score 1.0 before weighting: 0.3*1.0.
	if !almostEqual(results[0].Score, 0.3) {
		t.Errorf("results[0].Score = %.4f, want 0.3", results[0].Score)
	}
	// 0.3 * 1/(1+0.5) = 0.2
	if !almostEqual(results[1].Score, 0.2) {
		t.Errorf("results[1].Score = %.4f, want 0.2", results[1].Score)
	}
}

func TestHybridSearchWeightNormalization(t *testing.T) {
	db := newFakeDB()
	addEntry(db, "m1", "x")
	index := &fakeIndex{hits: []VectorHit{{ID: "m1", Distance: 1}}}
	db.textHits = []TextHit{{ID: "m1", Rank: -1}}
	h := NewHybridSearcher(db, index, nil, nil)
	ctx := context.Background()
	embedding := []float32{1}

	t.Run("weights scale to sum one", func(t *testing.T) {
		results, err := h.SearchWithEmbedding(ctx, "x", embedding, SearchOptions{
			VectorWeight: 2, TextWeight: 2,
		})
		if err != nil {
			t.Fatal(err)
		}
		// 0.5*0.5 + 0.5*1.0 = 0.75
		if !almostEqual(results[0].Score, 0.75) {
			t.Errorf("score = %.4f, want 0.75", results[0].Score)
		}
	})

	t.Run("both zero falls back to defaults", func(t *testing.T) {
		results, err := h.SearchWithEmbedding(ctx, "x", embedding, SearchOptions{})
		if err != nil {
			t.Fatal(err)
		}
		// 0.7*0.5 + 0.3*1.0 = 0.65
		if !almostEqual(results[0].Score, 0.65) {
			t.Errorf("score = %.4f, want 0.65", results[0].Score)
		}
	})

	t.Run("single sided weight", func(t *testing.T) {
		results, err := h.SearchWithEmbedding(ctx, "x", embedding, SearchOptions{
			VectorWeight: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		// Text weight 0: score is purely vector, 1/(1+1).
		if !almostEqual(results[0].Score, 0.5) {
			t.Errorf("score = %.4f, want 0.5", results[0].Score)
		}
	})
}

func TestHybridSearchMinScoreAndLimit(t *testing.T) {
	db := newFakeDB()
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		addEntry(db, id, id)
	}
	db.textHits = []TextHit{
		{ID: "m1", Rank: -1},  // 0.3
		{ID: "m2", Rank: 1},   // 0.15
		{ID: "m3", Rank: 3},   // 0.075
		{ID: "m4", Rank: 9},   // 0.03
	}
	h := NewHybridSearcher(db, nil, nil, nil)
	ctx := context.Background()

	t.Run("min score filters", func(t *testing.T) {
		results, err := h.SearchWithEmbedding(ctx, "q", nil, SearchOptions{MinScore: 0.1})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 || results[0].ID != "m1" || results[1].ID != "m2" {
			t.Errorf("results = %+v", results)
		}
	})

	t.Run("limit truncates", func(t *testing.T) {
		results, err := h.SearchWithEmbedding(ctx, "q", nil, SearchOptions{Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 || results[0].ID != "m1" {
			t.Errorf("results = %+v", results)
		}
	})
}

func TestHybridSearchTieBreakByInsertionOrder(t *testing.T) {
	db := newFakeDB()
	addEntry(db, "first", "a")
	addEntry(db, "second", "b")
	// Identical ranks produce identical scores.
	db.textHits = []TextHit{
		{ID: "first", Rank: 2},
		{ID: "second", Rank: 2},
	}
	h := NewHybridSearcher(db, nil, nil, nil)

	results, err := h.SearchWithEmbedding(context.Background(), "q", nil, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].ID != "first" || results[1].ID != "second" {
		t.Errorf("tie order broken: %+v", results)
	}
}

func TestHybridSearchDropsVanishedEntries(t *testing.T) {
	db := newFakeDB()
	addEntry(db, "kept", "still here")
	// "gone" is ranked but no longer in the store.
	db.textHits = []TextHit{
		{ID: "gone", Rank: -1},
		{ID: "kept", Rank: 1},
	}
	h := NewHybridSearcher(db, nil, nil, nil)

	results, err := h.SearchWithEmbedding(context.Background(), "q", nil, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "kept" {
		t.Errorf("results = %+v", results)
	}
}
