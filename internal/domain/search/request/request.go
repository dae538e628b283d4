package request

import (
	"fmt"
	"strings"

	"github.com/codeinspire/inspire/internal/domain"
	"github.com/codeinspire/inspire/internal/domain/ranking"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length.
	MaxQueryLength    = 1024
	MinQueryLength    = 2
	DefaultMaxResults = 5
	MaxMaxResults     = 20
)

// Request is a validated discovery query.
type Request struct {
	query      string
	maxResults int
	sortMode   ranking.Mode
	minStars   int
	language   string
}

// New validates and normalizes request parameters. Validation failures
// wrap domain.ErrInvalidRequest.
// Defaults: maxResults=5, sortMode=best, minStars=0.
func New(query string, maxResults int, sortMode ranking.Mode, minStars int, language string) (Request, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinQueryLength {
		return Request{}, fmt.Errorf("query must be at least %d characters: %w",
			MinQueryLength, domain.ErrInvalidRequest)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w",
			MaxQueryLength, domain.ErrInvalidRequest)
	}
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults < 1 || maxResults > MaxMaxResults {
		return Request{}, fmt.Errorf("max_results must be between 1 and %d: %w",
			MaxMaxResults, domain.ErrInvalidRequest)
	}
	if sortMode == "" {
		sortMode = ranking.Best
	}
	if !sortMode.IsValid() {
		return Request{}, fmt.Errorf("invalid sort mode %q: %w", sortMode, domain.ErrInvalidRequest)
	}
	if minStars < 0 {
		return Request{}, fmt.Errorf("min_stars must be non-negative: %w", domain.ErrInvalidRequest)
	}

	return Request{
		query:      query,
		maxResults: maxResults,
		sortMode:   sortMode,
		minStars:   minStars,
		language:   strings.TrimSpace(language),
	}, nil
}

// Query returns the free-text project description.
func (r *Request) Query() string { return r.query }

// MaxResults returns the result count bound (1..20).
func (r *Request) MaxResults() int { return r.maxResults }

// SortMode returns the requested ordering.
func (r *Request) SortMode() ranking.Mode { return r.sortMode }

// MinStars returns the minimum star filter.
func (r *Request) MinStars() int { return r.minStars }

// Language returns the primary-language filter, empty for none.
func (r *Request) Language() string { return r.language }
