// Package ranking fuses quality and similarity scores into one
// deterministic ordering.
package ranking

import (
	"sort"

	"github.com/codeinspire/inspire/internal/domain/candidate"
	"github.com/codeinspire/inspire/internal/domain/scoring"
)

// Scored is a candidate with its two independent scores. Similarity is
// query-dependent and may be absent (degraded mode); absence is explicit,
// never a silent zero.
type Scored struct {
	cand          candidate.Candidate
	quality       float64
	similarity    float64
	hasSimilarity bool
}

// NewScored creates a scored candidate with both scores present.
func NewScored(c candidate.Candidate, quality, similarity float64) Scored {
	return Scored{cand: c, quality: quality, similarity: similarity, hasSimilarity: true}
}

// NewQualityOnly creates a scored candidate without a similarity score.
func NewQualityOnly(c candidate.Candidate, quality float64) Scored {
	return Scored{cand: c, quality: quality}
}

// Candidate returns the underlying candidate.
func (s *Scored) Candidate() *candidate.Candidate { return &s.cand }

// Quality returns the metadata-derived quality score.
func (s *Scored) Quality() float64 { return s.quality }

// Similarity returns the query-dependent similarity score and whether it
// is present.
func (s *Scored) Similarity() (float64, bool) { return s.similarity, s.hasSimilarity }

// FusedKey is the final rank key for the fused mode: a pure function of
// (quality, similarity, weights). With similarity absent the key collapses
// to quality alone, so degraded ranking stays comparable within a response.
func FusedKey(s *Scored, w scoring.Weights) float64 {
	if !s.hasSimilarity {
		return s.quality
	}
	return w.FusionQuality*s.quality + w.FusionSimilarity*s.similarity
}

// Rank orders scored candidates and truncates to maxResults. It is a pure
// function: identical inputs always produce identical output.
//
// The fused default sorts by FusedKey; the metadata modes bypass the fused
// key and sort purely on the named field. All ties break by identity
// ascending. Duplicates (same candidate identity) are removed before
// sorting, keeping the entry with the higher fused key; truncation happens
// only after dedup and sort so a late high-scoring candidate is never
// dropped for an early low-scoring one.
func Rank(scored []Scored, mode Mode, maxResults int, w scoring.Weights) []Scored {
	deduped := dedupe(scored, w)

	sort.Slice(deduped, func(i, j int) bool {
		return less(&deduped[i], &deduped[j], mode, w)
	})

	if maxResults > 0 && len(deduped) > maxResults {
		deduped = deduped[:maxResults]
	}
	return deduped
}

func dedupe(scored []Scored, w scoring.Weights) []Scored {
	byID := make(map[int64]Scored, len(scored))
	order := make([]int64, 0, len(scored))
	for _, s := range scored {
		id := s.cand.ID()
		existing, ok := byID[id]
		if !ok {
			byID[id] = s
			order = append(order, id)
			continue
		}
		if FusedKey(&s, w) > FusedKey(&existing, w) {
			byID[id] = s
		}
	}

	out := make([]Scored, 0, len(byID))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func less(a, b *Scored, mode Mode, w scoring.Weights) bool {
	switch mode {
	case Stars:
		if a.cand.Stars() != b.cand.Stars() {
			return a.cand.Stars() > b.cand.Stars()
		}
	case Updated:
		if !a.cand.UpdatedAt().Equal(b.cand.UpdatedAt()) {
			return a.cand.UpdatedAt().After(b.cand.UpdatedAt())
		}
	case Created:
		if !a.cand.CreatedAt().Equal(b.cand.CreatedAt()) {
			return a.cand.CreatedAt().After(b.cand.CreatedAt())
		}
	default: // Best
		ka, kb := FusedKey(a, w), FusedKey(b, w)
		if ka != kb {
			return ka > kb
		}
	}
	return a.cand.ID() < b.cand.ID()
}
