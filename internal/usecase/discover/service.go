// Package discover orchestrates the discovery pipeline: candidate fetch,
// quality scoring, embedding similarity, ranking fusion, and insight
// enrichment.
package discover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codeinspire/inspire/internal/domain"
	"github.com/codeinspire/inspire/internal/domain/candidate"
	"github.com/codeinspire/inspire/internal/domain/insight"
	"github.com/codeinspire/inspire/internal/domain/ranking"
	"github.com/codeinspire/inspire/internal/domain/scoring"
	"github.com/codeinspire/inspire/internal/domain/search/request"
	"github.com/codeinspire/inspire/internal/domain/vector"
	"github.com/codeinspire/inspire/internal/metrics"
)

const (
	defaultPageBudget         = 2
	defaultEmbedConcurrency   = 8
	defaultInsightConcurrency = 3
)

// Config holds pipeline tuning knobs.
type Config struct {
	// PageBudget bounds provider pagination per request.
	PageBudget int
	// EmbedConcurrency bounds the candidate embedding fan-out.
	EmbedConcurrency int
	// InsightConcurrency bounds the insight enrichment fan-out.
	InsightConcurrency int
	// DegradeWithoutEmbeddings ranks by quality alone when the embedding
	// collaborator is unavailable instead of failing the request.
	DegradeWithoutEmbeddings bool
	Weights                  scoring.Weights
	Logger                   *zap.Logger
}

// Result is one ranked candidate with its scores and optional insight.
// Similarity is absent (HasSimilarity false) in degraded responses.
type Result struct {
	Candidate     candidate.Candidate
	Quality       float64
	Similarity    float64
	HasSimilarity bool
	// Final is the fused rank key (quality alone in degraded responses).
	Final   float64
	Insight insight.Insight
}

// Response is the ordered outcome of one discovery request.
type Response struct {
	Results []Result
	// Considered is the number of candidates that entered scoring.
	Considered int
	// Excluded counts candidates rejected by scoring policy
	// (archived, disabled, unscorable metadata, below min stars).
	Excluded int
	// Malformed counts provider records skipped during conversion.
	Malformed int
	// Degraded is true when similarity scoring was unavailable and
	// ranking fell back to quality alone.
	Degraded       bool
	WeightsVersion string
	Elapsed        time.Duration
}

// Service runs the discovery pipeline.
type Service struct {
	fetcher    Fetcher
	embedder   domain.Embedder
	summarizer Summarizer
	cfg        Config
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a discovery service. summarizer may be nil, in which case
// results carry skipped insights.
func New(fetcher Fetcher, embedder domain.Embedder, summarizer Summarizer, cfg Config) *Service {
	if cfg.PageBudget <= 0 {
		cfg.PageBudget = defaultPageBudget
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = defaultEmbedConcurrency
	}
	if cfg.InsightConcurrency <= 0 {
		cfg.InsightConcurrency = defaultInsightConcurrency
	}
	if cfg.Weights.Version == "" {
		cfg.Weights = scoring.DefaultWeights()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Service{
		fetcher:    fetcher,
		embedder:   embedder,
		summarizer: summarizer,
		cfg:        cfg,
		now:        time.Now,
		logger:     cfg.Logger,
	}
}

// Discover executes the pipeline for one validated request. An empty
// candidate pool after filtering is a valid empty response, not an error.
func (s *Service) Discover(ctx context.Context, req *request.Request) (*Response, error) {
	start := s.now()

	cands, malformed, err := s.fetcher.Fetch(
		ctx, req.Query(), req.MinStars(), req.Language(), s.cfg.PageBudget,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	now := s.now()
	scored, excluded := s.scorePool(cands, req.MinStars(), now)

	resp := &Response{
		Considered:     len(cands),
		Excluded:       excluded,
		Malformed:      malformed,
		WeightsVersion: s.cfg.Weights.Version,
	}

	if len(scored) == 0 {
		resp.Elapsed = s.now().Sub(start)
		return resp, nil
	}

	// Similarity is attached to the full scored pool before any ordering:
	// ranking never sees a partially scored set.
	scored, degraded, err := s.attachSimilarity(ctx, req.Query(), scored)
	if err != nil {
		return nil, err
	}
	resp.Degraded = degraded

	ranked := ranking.Rank(scored, req.SortMode(), req.MaxResults(), s.cfg.Weights)

	resp.Results = s.buildResults(ctx, ranked)
	resp.Elapsed = s.now().Sub(start)

	s.logger.Info("Discovery completed",
		zap.Int("considered", resp.Considered),
		zap.Int("excluded", resp.Excluded),
		zap.Int("malformed", resp.Malformed),
		zap.Int("results", len(resp.Results)),
		zap.Bool("degraded", resp.Degraded),
		zap.Duration("elapsed", resp.Elapsed),
	)
	return resp, nil
}

// scorePool applies the min-star policy and quality scoring. Exclusions
// are counted per candidate, never fatal.
func (s *Service) scorePool(
	cands []candidate.Candidate, minStars int, now time.Time,
) ([]ranking.Scored, int) {
	scored := make([]ranking.Scored, 0, len(cands))
	excluded := 0

	for i := range cands {
		if cands[i].Stars() < minStars {
			excluded++
			metrics.CandidatesSkippedTotal.WithLabelValues("below_min_stars").Inc()
			continue
		}

		quality, err := scoring.Score(&cands[i], now, s.cfg.Weights)
		if err != nil {
			excluded++
			metrics.CandidatesSkippedTotal.WithLabelValues("excluded").Inc()
			s.logger.Debug("Candidate excluded",
				zap.String("repo", cands[i].FullName()), zap.Error(err))
			continue
		}
		scored = append(scored, ranking.NewQualityOnly(cands[i], quality))
	}

	return scored, excluded
}

// attachSimilarity embeds the query and the candidate pool concurrently and
// rewrites each entry with its similarity score. When embedding is
// unavailable it either degrades the whole pool to quality-only (policy)
// or fails the request.
func (s *Service) attachSimilarity(
	ctx context.Context, query string, scored []ranking.Scored,
) ([]ranking.Scored, bool, error) {
	pool, err := s.similarityPool(ctx, query, scored)
	if err == nil {
		return pool, false, nil
	}

	// Cancellation wins over the degradation policy: a dead client gets
	// its context error back, never a quality-only ranking.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, false, err
	}
	if errors.Is(err, domain.ErrEmbeddingUnavailable) && s.cfg.DegradeWithoutEmbeddings {
		s.logger.Warn("Embedding unavailable, degrading to quality-only ranking", zap.Error(err))
		return scored, true, nil
	}
	return nil, false, fmt.Errorf("attach similarity: %w", err)
}

func (s *Service) similarityPool(
	ctx context.Context, query string, scored []ranking.Scored,
) ([]ranking.Scored, error) {
	queryRes, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	idx := vector.NewIndex(queryRes.Vector.Model())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)

	for i := range scored {
		g.Go(func() error {
			c := scored[i].Candidate()
			res, err := s.embedder.Embed(gctx, c.EmbeddingText())
			if err != nil {
				return fmt.Errorf("embed candidate %s: %w", c.FullName(), err)
			}
			return idx.Add(c.ID(), res.Vector)
		})
	}
	// Join barrier: no ordering happens until every embedding is in.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits, err := idx.Search(queryRes.Vector, idx.Len())
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	simByID := make(map[int64]float64, len(hits))
	for _, h := range hits {
		simByID[h.ID] = h.Similarity
	}

	pool := make([]ranking.Scored, 0, len(scored))
	for i := range scored {
		c := scored[i].Candidate()
		sim, ok := simByID[c.ID()]
		if !ok {
			return nil, fmt.Errorf("no similarity for candidate %d", c.ID())
		}
		pool = append(pool, ranking.NewScored(*c, scored[i].Quality(), sim))
	}
	return pool, nil
}

// buildResults enriches the ranked page with insights under a bounded
// fan-out. A failed summarization degrades that single result.
func (s *Service) buildResults(ctx context.Context, ranked []ranking.Scored) []Result {
	results := make([]Result, len(ranked))
	for i := range ranked {
		sim, ok := ranked[i].Similarity()
		results[i] = Result{
			Candidate:     *ranked[i].Candidate(),
			Quality:       ranked[i].Quality(),
			Similarity:    sim,
			HasSimilarity: ok,
			Final:         ranking.FusedKey(&ranked[i], s.cfg.Weights),
			Insight:       insight.Skipped(),
		}
	}

	if s.summarizer == nil {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.InsightConcurrency)

	for i := range results {
		g.Go(func() error {
			ins, err := s.summarizer.Summarize(gctx, &results[i].Candidate)
			if err != nil {
				s.logger.Warn("Insight generation failed",
					zap.String("repo", results[i].Candidate.FullName()), zap.Error(err))
				results[i].Insight = insight.Degraded()
				return nil //nolint:nilerr // per-candidate degradation, rank intact
			}
			results[i].Insight = ins
			return nil
		})
	}
	_ = g.Wait()

	return results
}
