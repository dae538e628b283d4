package vector

import (
	"fmt"
	"sort"
	"sync"
)

// Hit is a single nearest-neighbor match.
type Hit struct {
	ID         int64
	Similarity float64
}

// Index holds candidate vectors for one query pool and answers
// nearest-neighbor queries by exact cosine scan. Pools here are small
// (bounded by the fetch page budget), so exact search is both correct and
// cheap; an approximate structure would only be warranted far beyond the
// sizes this pipeline produces.
//
// Add is safe for concurrent use; Search must not race with Add.
type Index struct {
	mu      sync.Mutex
	model   string
	entries []entry
}

type entry struct {
	id  int64
	vec Vector
}

// NewIndex creates an index bound to one embedding-model identity.
func NewIndex(model string) *Index {
	return &Index{model: model}
}

// Add inserts a candidate vector, failing fast on model or dimension mismatch.
func (ix *Index) Add(id int64, v Vector) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if v.Model() != ix.model {
		return fmt.Errorf("%w: index is %q, vector is %q", ErrModelMismatch, ix.model, v.Model())
	}
	if len(ix.entries) > 0 && ix.entries[0].vec.Dim() != v.Dim() {
		return fmt.Errorf("%w: index has %d, vector has %d",
			ErrDimMismatch, ix.entries[0].vec.Dim(), v.Dim())
	}
	ix.entries = append(ix.entries, entry{id: id, vec: v})
	return nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

// Search returns the topK entries most similar to q, ordered by similarity
// descending with ties broken by id ascending for determinism.
func (ix *Index) Search(q Vector, topK int) ([]Hit, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	hits := make([]Hit, 0, len(ix.entries))
	for _, e := range ix.entries {
		sim, err := Similarity(q, e.vec)
		if err != nil {
			return nil, fmt.Errorf("similarity for %d: %w", e.id, err)
		}
		hits = append(hits, Hit{ID: e.id, Similarity: sim})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
