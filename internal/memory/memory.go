// Package memory persists durable facts and retrieves them with hybrid
// vector plus lexical search.
package memory

import (
	"context"
	"errors"

	"github.com/hayahq/haya/pkg/models"
)

// ErrMemoryNotFound is returned when an id does not exist.
var ErrMemoryNotFound = errors.New("memory not found")

// TextHit is one lexical match. Rank follows the FTS5 convention: lower
// is better and matches are negative.
type TextHit struct {
	ID   string
	Rank float64
}

// DB is the durable memory store.
type DB interface {
	Save(ctx context.Context, entry *models.MemoryEntry) error
	GetByID(ctx context.Context, id string) (*models.MemoryEntry, error)
	Delete(ctx context.Context, id string) error

	// SearchText returns the top lexical matches by BM25 rank,
	// best first. An empty query returns no hits.
	SearchText(ctx context.Context, query string, limit int) ([]TextHit, error)

	Close() error
}

// StoredEmbedding is one persisted vector, used to rebuild the index on
// startup.
type StoredEmbedding struct {
	ID        string
	Embedding []float32
}

// EmbeddingLister is implemented by stores that can enumerate persisted
// embeddings in insertion order.
type EmbeddingLister interface {
	ListEmbeddings(ctx context.Context) ([]StoredEmbedding, error)
}

// VectorHit is one nearest-neighbor match. Distance is non-negative;
// smaller means closer.
type VectorHit struct {
	ID       string
	Distance float64
}

// VectorIndex holds dense embeddings for nearest-neighbor retrieval.
type VectorIndex interface {
	Add(id string, embedding []float32) error
	Remove(id string)

	// Search returns the closest entries, nearest first.
	Search(embedding []float32, limit int) ([]VectorHit, error)
}

// Embedder turns text into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
