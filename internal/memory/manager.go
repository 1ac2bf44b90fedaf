package memory

import (
	"context"

	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/pkg/models"
)

// Manager is the write-plus-search facade the rest of the gateway uses.
// Saves embed when an embedder is attached and keep the vector index in
// step with the store.
type Manager struct {
	db       DB
	index    VectorIndex
	embedder Embedder
	searcher *HybridSearcher
	logger   *observability.Logger
}

// NewManager composes the store, optional index, and optional embedder.
func NewManager(db DB, index VectorIndex, embedder Embedder, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Manager{
		db:       db,
		index:    index,
		embedder: embedder,
		searcher: NewHybridSearcher(db, index, embedder, metrics),
		logger:   logger,
	}
}

// LoadIndex rebuilds the vector index from embeddings already persisted
// in the store. Call once on startup; without it the index starts empty
// and search degrades to lexical only.
func (m *Manager) LoadIndex(ctx context.Context) error {
	if m.index == nil {
		return nil
	}
	lister, ok := m.db.(EmbeddingLister)
	if !ok {
		return nil
	}
	stored, err := lister.ListEmbeddings(ctx)
	if err != nil {
		return err
	}
	loaded := 0
	for _, entry := range stored {
		if err := m.index.Add(entry.ID, entry.Embedding); err != nil {
			m.logger.Warn(ctx, "skipping stored embedding", "id", entry.ID, "error", err)
			continue
		}
		loaded++
	}
	if loaded > 0 {
		m.logger.Info(ctx, "vector index rebuilt", "entries", loaded)
	}
	return nil
}

// Save persists an entry, embedding its content when possible. A failed
// embedding is logged and the entry is still saved for lexical search.
func (m *Manager) Save(ctx context.Context, entry *models.MemoryEntry) error {
	if len(entry.Embedding) == 0 && m.embedder != nil {
		vec, err := m.embedder.Embed(ctx, entry.Content)
		if err != nil {
			m.logger.Warn(ctx, "embedding failed, saving lexical only", "error", err)
		} else {
			entry.Embedding = vec
		}
	}

	if err := m.db.Save(ctx, entry); err != nil {
		return err
	}
	if m.index != nil && len(entry.Embedding) > 0 {
		if err := m.index.Add(entry.ID, entry.Embedding); err != nil {
			m.logger.Warn(ctx, "vector index add failed", "id", entry.ID, "error", err)
		}
	}
	return nil
}

// Delete removes an entry from the store and the index.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.db.Delete(ctx, id); err != nil {
		return err
	}
	if m.index != nil {
		m.index.Remove(id)
	}
	return nil
}

// GetByID fetches one entry.
func (m *Manager) GetByID(ctx context.Context, id string) (*models.MemoryEntry, error) {
	return m.db.GetByID(ctx, id)
}

// Search runs hybrid retrieval for the query.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]models.MemorySearchResult, error) {
	return m.searcher.Search(ctx, query, opts)
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.db.Close()
}
