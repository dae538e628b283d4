// Package scoring computes the metadata-derived, query-independent quality
// score ("inspiration score") for a candidate repository.
package scoring

import (
	"math"
	"time"

	"github.com/codeinspire/inspire/internal/domain"
	"github.com/codeinspire/inspire/internal/domain/candidate"
)

// Weights is the versioned ranking contract. Every constant that changes
// ordering behavior lives here; changing any value requires bumping Version
// so ranking changes stay auditable.
type Weights struct {
	Version string

	// Quality score components. Must sum to 1.
	Stars   float64
	Recency float64
	Docs    float64

	// StarSaturation is the star count at which the log-scaled star term
	// reaches 1. Star counts are heavy-tailed, hence log scaling.
	StarSaturation float64

	// RecencyHalfLife is the decay half-life of the last-update term.
	RecencyHalfLife time.Duration

	// Fusion combines quality and similarity into the final rank key:
	// FusionQuality*quality + FusionSimilarity*similarity. Must sum to 1.
	FusionQuality    float64
	FusionSimilarity float64

	// DescriptionSaturation is the description length (bytes) at which the
	// description part of the docs term reaches its maximum.
	DescriptionSaturation int
}

// DefaultWeights returns ranking contract version v1.
func DefaultWeights() Weights {
	return Weights{
		Version:               "v1",
		Stars:                 0.5,
		Recency:               0.3,
		Docs:                  0.2,
		StarSaturation:        10000,
		RecencyHalfLife:       180 * 24 * time.Hour,
		FusionQuality:         0.4,
		FusionSimilarity:      0.6,
		DescriptionSaturation: 200,
	}
}

// Score computes the quality score in [0,1] for a candidate, or an
// ExclusionError when the candidate cannot be scored. The min-star filter
// is the caller's concern and is applied before Score is ever called;
// exclusions here cover metadata that makes the score undefined. Pure and
// deterministic for a fixed now.
func Score(c *candidate.Candidate, now time.Time, w Weights) (float64, error) {
	if c.Archived() {
		return 0, domain.NewExclusion("archived")
	}
	if c.Disabled() {
		return 0, domain.NewExclusion("disabled")
	}
	if c.UpdatedAt().IsZero() {
		return 0, domain.NewExclusion("missing update timestamp")
	}

	score := w.Stars*starTerm(c.Stars(), w) +
		w.Recency*recencyTerm(c.UpdatedAt(), now, w) +
		w.Docs*docsTerm(c, w)

	// Weight rounding can push the sum a hair past 1.
	return math.Min(score, 1), nil
}

// starTerm is log-scaled: log1p(stars)/log1p(saturation), capped at 1.
func starTerm(stars int, w Weights) float64 {
	t := math.Log1p(float64(stars)) / math.Log1p(w.StarSaturation)
	return math.Min(t, 1)
}

// recencyTerm decays exponentially against the half-life: a repository
// updated today scores 1, one half-life ago 0.5.
func recencyTerm(updatedAt, now time.Time, w Weights) float64 {
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1
	}
	halfLives := float64(age) / float64(w.RecencyHalfLife)
	return math.Pow(0.5, halfLives)
}

// docsTerm grades documentation presence: half from description length,
// half from a fetched readme.
func docsTerm(c *candidate.Candidate, w Weights) float64 {
	desc := float64(len(c.Description())) / float64(w.DescriptionSaturation)
	if desc > 1 {
		desc = 1
	}
	readme := 0.0
	if c.ReadmeExcerpt() != "" {
		readme = 1
	}
	return 0.5*desc + 0.5*readme
}
