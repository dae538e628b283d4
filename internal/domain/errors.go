package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUpstreamUnavailable signals that the repository search provider is unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamThrottled signals a provider rate limit. Wrapped by ThrottledError.
	ErrUpstreamThrottled = errors.New("upstream throttled")
	// ErrEmbeddingUnavailable signals that the embedding provider is unavailable.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrMalformedCandidate signals an unusable provider record (per-record, non-fatal).
	ErrMalformedCandidate = errors.New("malformed candidate")
	// ErrCandidateExcluded signals a candidate filtered out before scoring. Wrapped by ExclusionError.
	ErrCandidateExcluded = errors.New("candidate excluded")
	// ErrInvalidRequest signals an invalid caller request.
	ErrInvalidRequest = errors.New("invalid request")
)

// ThrottledError wraps ErrUpstreamThrottled with the provider's retry-after hint.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrUpstreamThrottled.Error(), e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error { return ErrUpstreamThrottled }

// NewThrottled creates a throttled error carrying a retry-after hint.
func NewThrottled(retryAfter time.Duration) error {
	return &ThrottledError{RetryAfter: retryAfter}
}

// ExclusionError wraps ErrCandidateExcluded with the exclusion reason.
// Exclusion is a distinct path from a low score: callers must be able to
// tell "filtered out" apart from "scored low".
type ExclusionError struct {
	Reason string
}

func (e *ExclusionError) Error() string {
	return ErrCandidateExcluded.Error() + ": " + e.Reason
}

func (e *ExclusionError) Unwrap() error { return ErrCandidateExcluded }

// NewExclusion creates an exclusion error with a reason.
func NewExclusion(reason string) error {
	return &ExclusionError{Reason: reason}
}
