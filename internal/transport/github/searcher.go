// Package github implements the candidate fetcher on the GitHub search API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	gh "github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/codeinspire/inspire/internal/domain"
	"github.com/codeinspire/inspire/internal/domain/candidate"
	"github.com/codeinspire/inspire/internal/metrics"
)

const (
	defaultPageSize          = 30
	maxPageSize              = 100
	defaultMaxTries          = 3
	defaultReadmeConcurrency = 4
)

// Config holds GitHub search provider settings.
type Config struct {
	// Token is the API access token. Empty means unauthenticated
	// (heavily rate-limited by the provider).
	Token string
	// BaseURL overrides the API endpoint (tests, GitHub Enterprise).
	BaseURL string
	// PageSize is the per-page result count (max 100).
	PageSize int
	// RequestsPerSecond paces outgoing API calls. 0 disables pacing.
	RequestsPerSecond float64
	// FetchReadmes enables per-candidate readme excerpt fetching.
	FetchReadmes bool
	// ReadmeConcurrency bounds the readme fetch fan-out.
	ReadmeConcurrency int
	// MaxTries bounds retry attempts per API call.
	MaxTries uint
	Logger   *zap.Logger
}

// Searcher fetches repository candidates from the GitHub search API.
type Searcher struct {
	client            *gh.Client
	pageSize          int
	limiter           *rate.Limiter
	fetchReadmes      bool
	readmeConcurrency int
	maxTries          uint
	logger            *zap.Logger
}

// NewSearcher creates a GitHub-backed candidate fetcher.
func NewSearcher(ctx context.Context, cfg *Config) (*Searcher, error) {
	httpClient := http.DefaultClient
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	}

	client := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("set base url: %w", err)
		}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	maxTries := cfg.MaxTries
	if maxTries == 0 {
		maxTries = defaultMaxTries
	}

	readmeConcurrency := cfg.ReadmeConcurrency
	if readmeConcurrency <= 0 {
		readmeConcurrency = defaultReadmeConcurrency
	}

	return &Searcher{
		client:            client,
		pageSize:          pageSize,
		limiter:           limiter,
		fetchReadmes:      cfg.FetchReadmes,
		readmeConcurrency: readmeConcurrency,
		maxTries:          maxTries,
		logger:            cfg.Logger,
	}, nil
}

// Fetch returns candidates for the query, deduplicated by identity across
// pages, with min-star and language filters applied both provider-side and
// locally (provider filters are best-effort). Malformed records are
// skipped and counted, never fatal. The returned count is the number of
// skipped records.
func (s *Searcher) Fetch(
	ctx context.Context, query string, minStars int, language string, pageBudget int,
) ([]candidate.Candidate, int, error) {
	if pageBudget <= 0 {
		pageBudget = 1
	}

	qualified := buildQuery(query, minStars, language)

	var (
		cands     []candidate.Candidate
		malformed int
	)
	seen := make(map[int64]struct{})

	page := 1
	for fetched := 0; fetched < pageBudget; fetched++ {
		result, resp, err := s.searchPage(ctx, qualified, page)
		if err != nil {
			return nil, malformed, err
		}

		for _, repo := range result.Repositories {
			c, err := toCandidate(repo)
			if err != nil {
				malformed++
				metrics.CandidatesSkippedTotal.WithLabelValues("malformed").Inc()
				s.logger.Warn("Skipping malformed candidate", zap.Error(err))
				continue
			}
			if _, dup := seen[c.ID()]; dup {
				continue
			}
			// Defensive re-check: provider-side qualifiers are best-effort.
			if c.Stars() < minStars {
				continue
			}
			if language != "" && !strings.EqualFold(c.Language(), language) {
				continue
			}
			seen[c.ID()] = struct{}{}
			cands = append(cands, c)
		}

		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}

	if s.fetchReadmes {
		s.attachReadmes(ctx, cands)
	}

	return cands, malformed, nil
}

// searchPage runs one paginated search call with pacing and bounded retry.
func (s *Searcher) searchPage(
	ctx context.Context, qualified string, page int,
) (*gh.RepositoriesSearchResult, *gh.Response, error) {
	type pageResult struct {
		result *gh.RepositoriesSearchResult
		resp   *gh.Response
	}

	start := time.Now()

	out, err := backoff.Retry(ctx, func() (pageResult, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return pageResult{}, backoff.Permanent(err)
		}

		result, resp, err := s.client.Search.Repositories(ctx, qualified, &gh.SearchOptions{
			Sort:        "stars",
			Order:       "desc",
			ListOptions: gh.ListOptions{PerPage: s.pageSize, Page: page},
		})
		if err != nil {
			mapped := mapProviderError(err)
			if errors.Is(mapped, domain.ErrUpstreamThrottled) {
				// Retrying past a rate limit within one request rarely
				// helps; surface the hint to the caller immediately.
				return pageResult{}, backoff.Permanent(mapped)
			}
			if !isTransient(err) {
				return pageResult{}, backoff.Permanent(mapped)
			}
			return pageResult{}, mapped
		}
		return pageResult{result: result, resp: resp}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(s.maxTries),
	)

	metrics.SearchProviderRequestDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())

	if err != nil {
		status := "error"
		if errors.Is(err, domain.ErrUpstreamThrottled) {
			status = "throttled"
		}
		metrics.SearchProviderRequestsTotal.WithLabelValues(status).Inc()
		return nil, nil, err
	}

	metrics.SearchProviderRequestsTotal.WithLabelValues("success").Inc()
	return out.result, out.resp, nil
}

// attachReadmes fetches readme excerpts for the candidates with a bounded
// fan-out. Readme failures are soft: the candidate keeps an empty excerpt.
func (s *Searcher) attachReadmes(ctx context.Context, cands []candidate.Candidate) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.readmeConcurrency)

	for i := range cands {
		g.Go(func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil //nolint:nilerr // cancellation ends enrichment, not the fetch
			}

			start := time.Now()
			content, _, err := s.client.Repositories.GetReadme(ctx, cands[i].Owner(), cands[i].Name(), nil)
			metrics.SearchProviderRequestDuration.WithLabelValues("readme").Observe(time.Since(start).Seconds())
			if err != nil {
				s.logger.Debug("Readme fetch failed",
					zap.String("repo", cands[i].FullName()), zap.Error(err))
				return nil
			}

			text, err := content.GetContent()
			if err != nil {
				s.logger.Debug("Readme decode failed",
					zap.String("repo", cands[i].FullName()), zap.Error(err))
				return nil
			}

			cands[i] = cands[i].WithReadme(text)
			return nil
		})
	}

	_ = g.Wait()
}

// buildQuery composes the provider-side qualified query.
func buildQuery(query string, minStars int, language string) string {
	parts := []string{query}
	if minStars > 0 {
		parts = append(parts, fmt.Sprintf("stars:>=%d", minStars))
	}
	if language != "" {
		parts = append(parts, "language:"+language)
	}
	return strings.Join(parts, " ")
}

// toCandidate converts one provider record, failing with
// ErrMalformedCandidate when identity fields are missing.
func toCandidate(repo *gh.Repository) (candidate.Candidate, error) {
	if repo == nil {
		return candidate.Candidate{}, fmt.Errorf("%w: nil record", domain.ErrMalformedCandidate)
	}
	if repo.GetID() == 0 || repo.GetName() == "" ||
		repo.GetOwner().GetLogin() == "" || repo.GetHTMLURL() == "" {
		return candidate.Candidate{}, fmt.Errorf(
			"%w: record %d %q missing identity fields", domain.ErrMalformedCandidate,
			repo.GetID(), repo.GetFullName())
	}

	c, err := candidate.New(
		repo.GetID(),
		repo.GetName(),
		repo.GetOwner().GetLogin(),
		repo.GetDescription(),
		repo.GetLanguage(),
		repo.GetStargazersCount(),
		repo.GetCreatedAt().Time,
		repo.GetUpdatedAt().Time,
		repo.GetPushedAt().Time,
		repo.GetHTMLURL(),
	)
	if err != nil {
		return candidate.Candidate{}, fmt.Errorf("%w: %s", domain.ErrMalformedCandidate, err)
	}

	return c.WithFlags(repo.GetArchived(), repo.GetDisabled(), repo.GetFork()), nil
}

// mapProviderError translates go-github errors into the domain taxonomy.
// Context errors pass through untouched so a cancelled request surfaces
// as cancellation, not as a provider outage.
func mapProviderError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return domain.NewThrottled(time.Until(rateErr.Rate.Reset.Time))
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		retryAfter := time.Minute
		if abuseErr.RetryAfter != nil {
			retryAfter = *abuseErr.RetryAfter
		}
		return domain.NewThrottled(retryAfter)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		if respErr.Response.StatusCode == http.StatusForbidden ||
			respErr.Response.StatusCode == http.StatusTooManyRequests {
			return domain.NewThrottled(time.Minute)
		}
		return fmt.Errorf("provider returned %d: %w",
			respErr.Response.StatusCode, domain.ErrUpstreamUnavailable)
	}

	return fmt.Errorf("provider request failed: %w", domain.ErrUpstreamUnavailable)
}

// isTransient reports whether an error is worth retrying (5xx and
// transport failures; 4xx responses are permanent).
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode >= 500
	}
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return false
	}
	return true
}
