// Package chi provides the HTTP API surface.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codeinspire/inspire/internal/domain"
	"github.com/codeinspire/inspire/internal/domain/ranking"
	"github.com/codeinspire/inspire/internal/domain/search/request"
	discoveruc "github.com/codeinspire/inspire/internal/usecase/discover"
	healthuc "github.com/codeinspire/inspire/internal/usecase/health"
)

// Error response codes.
const (
	codeBadRequest           = "bad_request"
	codeUnauthorized         = "unauthorized"
	codeValidationFailed     = "validation_failed"
	codeUpstreamThrottled    = "upstream_throttled"
	codeUpstreamUnavailable  = "upstream_unavailable"
	codeEmbeddingUnavailable = "embedding_unavailable"
	codeInternalError        = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	discover      *discoveruc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	discover *discoveruc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		discover: discover,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		throttledHandler,
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusBadGateway, codeUpstreamUnavailable),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, codeEmbeddingUnavailable),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed),
	}
	return s
}

// RegisterRoutes mounts the API routes on the router. Middleware is the
// caller's concern.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
	})
}

// searchRequestBody is the POST /api/v1/search payload.
type searchRequestBody struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	SortBy     string `json:"sort_by,omitempty"`
	MinStars   int    `json:"min_stars,omitempty"`
	Language   string `json:"language,omitempty"`
}

type repositoryItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Stars       int    `json:"stars"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type scoreItem struct {
	Quality    float64  `json:"quality"`
	Similarity *float64 `json:"similarity,omitempty"`
	Final      float64  `json:"final"`
}

type insightItem struct {
	Summary            string   `json:"summary"`
	KeyFeatures        []string `json:"key_features,omitempty"`
	LearningInsights   []string `json:"learning_insights,omitempty"`
	ImplementationTips []string `json:"implementation_tips,omitempty"`
}

type resultItem struct {
	Repository    repositoryItem `json:"repository"`
	Scores        scoreItem      `json:"scores"`
	Insight       *insightItem   `json:"insight,omitempty"`
	InsightStatus string         `json:"insight_status"`
}

type searchResponseBody struct {
	Results          []resultItem `json:"results"`
	TotalConsidered  int          `json:"total_considered"`
	Excluded         int          `json:"excluded"`
	MalformedSkipped int          `json:"malformed_skipped"`
	Degraded         bool         `json:"degraded"`
	WeightsVersion   string       `json:"weights_version"`
	SearchTimeMs     int64        `json:"search_time_ms"`
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := request.New(
		body.Query, body.MaxResults, ranking.Mode(body.SortBy), body.MinStars, body.Language,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	resp, err := s.discover.Discover(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseToBody(resp))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": string(report.Status),
		"checks": checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func searchResponseToBody(resp *discoveruc.Response) searchResponseBody {
	items := make([]resultItem, len(resp.Results))
	for i := range resp.Results {
		items[i] = resultToItem(&resp.Results[i])
	}

	return searchResponseBody{
		Results:          items,
		TotalConsidered:  resp.Considered,
		Excluded:         resp.Excluded,
		MalformedSkipped: resp.Malformed,
		Degraded:         resp.Degraded,
		WeightsVersion:   resp.WeightsVersion,
		SearchTimeMs:     resp.Elapsed.Milliseconds(),
	}
}

func resultToItem(res *discoveruc.Result) resultItem {
	c := &res.Candidate

	repo := repositoryItem{
		ID:          c.ID(),
		Name:        c.Name(),
		Owner:       c.Owner(),
		FullName:    c.FullName(),
		Description: c.Description(),
		Language:    c.Language(),
		Stars:       c.Stars(),
		URL:         c.URL(),
	}
	if !c.CreatedAt().IsZero() {
		repo.CreatedAt = c.CreatedAt().UTC().Format(time.RFC3339)
	}
	if !c.UpdatedAt().IsZero() {
		repo.UpdatedAt = c.UpdatedAt().UTC().Format(time.RFC3339)
	}

	scores := scoreItem{Quality: res.Quality, Final: res.Final}
	if res.HasSimilarity {
		sim := res.Similarity
		scores.Similarity = &sim
	}

	item := resultItem{
		Repository:    repo,
		Scores:        scores,
		InsightStatus: string(res.Insight.Status()),
	}
	if res.Insight.Present() {
		item.Insight = &insightItem{
			Summary:            res.Insight.Summary(),
			KeyFeatures:        res.Insight.KeyFeatures(),
			LearningInsights:   res.Insight.LearningInsights(),
			ImplementationTips: res.Insight.ImplementationTips(),
		}
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrUpstreamThrottled,
		domain.ErrUpstreamUnavailable,
		domain.ErrEmbeddingUnavailable,
		domain.ErrInvalidRequest,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// throttledHandler handles ErrUpstreamThrottled with a Retry-After header.
func throttledHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrUpstreamThrottled) {
		return false
	}
	var te *domain.ThrottledError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		seconds := int(te.RetryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeError(w, http.StatusServiceUnavailable, codeUpstreamThrottled, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
