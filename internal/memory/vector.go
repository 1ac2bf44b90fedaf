package memory

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// BruteForceIndex is an exact in-memory nearest-neighbor index over L2
// distance. Linear scan per query; fine for the tens of thousands of
// entries a single gateway accumulates.
type BruteForceIndex struct {
	mu        sync.RWMutex
	dimension int
	ids       []string
	vectors   map[string][]float32
}

// NewBruteForceIndex creates an index for vectors of the given dimension.
func NewBruteForceIndex(dimension int) *BruteForceIndex {
	return &BruteForceIndex{
		dimension: dimension,
		vectors:   make(map[string][]float32),
	}
}

// Add inserts or replaces an entry. Dimension mismatches fail.
func (idx *BruteForceIndex) Add(id string, embedding []float32) error {
	if len(embedding) != idx.dimension {
		return fmt.Errorf("embedding dimension %d, index expects %d", len(embedding), idx.dimension)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.vectors[id]; !exists {
		idx.ids = append(idx.ids, id)
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	idx.vectors[id] = vec
	return nil
}

// Remove deletes an entry. Unknown ids are a no-op.
func (idx *BruteForceIndex) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.vectors[id]; !exists {
		return
	}
	delete(idx.vectors, id)
	for i, existing := range idx.ids {
		if existing == id {
			idx.ids = append(idx.ids[:i], idx.ids[i+1:]...)
			break
		}
	}
}

// Size returns the number of indexed entries.
func (idx *BruteForceIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Search returns the limit nearest entries by L2 distance, nearest
// first. Equal distances keep insertion order.
func (idx *BruteForceIndex) Search(embedding []float32, limit int) ([]VectorHit, error) {
	if len(embedding) != idx.dimension {
		return nil, fmt.Errorf("query dimension %d, index expects %d", len(embedding), idx.dimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	hits := make([]VectorHit, 0, len(idx.ids))
	for _, id := range idx.ids {
		hits = append(hits, VectorHit{ID: id, Distance: l2Distance(embedding, idx.vectors[id])})
	}
	idx.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
