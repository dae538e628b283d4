package discover

import (
	"context"

	"github.com/codeinspire/inspire/internal/domain/candidate"
	"github.com/codeinspire/inspire/internal/domain/insight"
)

// Fetcher retrieves repository candidates from the search provider.
// It returns the candidates, the number of malformed records skipped, and
// a fatal error for whole-fetch failures (unavailable, throttled).
type Fetcher interface {
	Fetch(ctx context.Context, query string, minStars int, language string, pageBudget int,
	) ([]candidate.Candidate, int, error)
}

// Summarizer generates learning insights for a single candidate. Failures
// are per-candidate and degrade only that result.
type Summarizer interface {
	Summarize(ctx context.Context, c *candidate.Candidate) (insight.Insight, error)
}
