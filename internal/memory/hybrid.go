package memory

import (
	"context"
	"sort"
	"time"

	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/pkg/models"
)

// Default fusion weights and limits for hybrid search.
const (
	DefaultSearchLimit  = 10
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3

	// candidateMultiplier oversamples each modality so fusion has
	// enough overlap to rank from.
	candidateMultiplier = 4
)

// SearchOptions tunes a hybrid search. Zero values take the defaults
// above; explicitly setting both weights to zero also falls back.
type SearchOptions struct {
	Limit        int
	MinScore     float64
	VectorWeight float64
	TextWeight   float64
}

// HybridSearcher fuses vector and lexical retrieval over one memory
// store. The vector index and embedder are optional; without them the
// search degrades to lexical only.
type HybridSearcher struct {
	db       DB
	index    VectorIndex
	embedder Embedder
	metrics  *observability.Metrics
}

// NewHybridSearcher creates a searcher. db is required.
func NewHybridSearcher(db DB, index VectorIndex, embedder Embedder, metrics *observability.Metrics) *HybridSearcher {
	return &HybridSearcher{db: db, index: index, embedder: embedder, metrics: metrics}
}

// Search embeds the query when an embedder is available and runs
// SearchWithEmbedding.
func (h *HybridSearcher) Search(ctx context.Context, query string, opts SearchOptions) ([]models.MemorySearchResult, error) {
	var embedding []float32
	if h.embedder != nil && h.index != nil {
		vec, err := h.embedder.Embed(ctx, query)
		if err == nil {
			embedding = vec
		}
		// On embedding failure the lexical leg still runs.
	}
	return h.SearchWithEmbedding(ctx, query, embedding, opts)
}

// SearchWithEmbedding runs hybrid retrieval with a caller-provided query
// embedding. A nil embedding skips the vector leg.
func (h *HybridSearcher) SearchWithEmbedding(ctx context.Context, query string, queryEmbedding []float32, opts SearchOptions) ([]models.MemorySearchResult, error) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.MemorySearchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	candidateLimit := limit * candidateMultiplier

	type candidate struct {
		vectorScore float64
		textScore   float64
	}
	scores := make(map[string]*candidate)
	var order []string
	track := func(id string) *candidate {
		c, ok := scores[id]
		if !ok {
			c = &candidate{}
			scores[id] = c
			order = append(order, id)
		}
		return c
	}

	if h.index != nil && len(queryEmbedding) > 0 {
		hits, err := h.index.Search(queryEmbedding, candidateLimit)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			track(hit.ID).vectorScore = distanceToScore(hit.Distance)
		}
	}

	textHits, err := h.db.SearchText(ctx, query, candidateLimit)
	if err != nil {
		return nil, err
	}
	for _, hit := range textHits {
		track(hit.ID).textScore = rankToScore(hit.Rank)
	}

	vw, tw := normalizeWeights(opts.VectorWeight, opts.TextWeight)

	type scored struct {
		id    string
		pos   int
		score float64
	}
	fused := make([]scored, 0, len(order))
	for pos, id := range order {
		c := scores[id]
		combined := vw*c.vectorScore + tw*c.textScore
		if combined < opts.MinScore {
			continue
		}
		fused = append(fused, scored{id: id, pos: pos, score: combined})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].pos < fused[j].pos
	})
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results := make([]models.MemorySearchResult, 0, len(fused))
	for _, s := range fused {
		entry, err := h.db.GetByID(ctx, s.id)
		if err != nil {
			// Entry deleted between retrieval and lookup.
			continue
		}
		results = append(results, models.MemorySearchResult{
			ID:       entry.ID,
			Content:  entry.Content,
			Source:   entry.Source,
			Score:    s.score,
			Metadata: entry.Metadata,
		})
	}
	return results, nil
}

// distanceToScore maps an L2 distance into (0,1], monotonically
// decreasing in distance.
func distanceToScore(d float64) float64 {
	return 1 / (1 + d)
}

// rankToScore maps a BM25 rank into (0,1]. FTS5 ranks matches negative,
// so any match scores 1.0 before fusion weighting.
func rankToScore(rank float64) float64 {
	if rank < 0 {
		rank = 0
	}
	return 1 / (1 + rank)
}

func normalizeWeights(vw, tw float64) (float64, float64) {
	if vw == 0 && tw == 0 {
		vw, tw = DefaultVectorWeight, DefaultTextWeight
	}
	sum := vw + tw
	return vw / sum, tw / sum
}
