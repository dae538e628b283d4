package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/codeinspire/inspire/internal/domain"
	"github.com/codeinspire/inspire/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterProviderMetrics()
	os.Exit(m.Run())
}

// searchItem mirrors the provider's repository search record.
func searchItem(id int64, name, owner string, stars int, language string) map[string]any {
	return map[string]any{
		"id":               id,
		"name":             name,
		"full_name":        owner + "/" + name,
		"owner":            map[string]any{"login": owner},
		"html_url":         "https://github.com/" + owner + "/" + name,
		"description":      "a test repository",
		"stargazers_count": stars,
		"language":         language,
		"created_at":       "2023-01-01T00:00:00Z",
		"updated_at":       "2025-05-01T00:00:00Z",
		"pushed_at":        "2025-05-01T00:00:00Z",
		"archived":         false,
		"disabled":         false,
		"fork":             false,
	}
}

func searchBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"total_count":        len(items),
		"incomplete_results": false,
		"items":              items,
	}
}

func newTestSearcher(t *testing.T, baseURL string, mutate func(*Config)) *Searcher {
	t.Helper()
	cfg := &Config{
		BaseURL:  baseURL,
		MaxTries: 1,
		Logger:   zap.NewNop(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := NewSearcher(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewSearcher failed: %v", err)
	}
	return s
}

func TestFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q != "task runner stars:>=10 language:Go" {
			t.Errorf("qualified query = %q", q)
		}
		writeTestJSON(t, w, searchBody(
			searchItem(1, "alpha", "acme", 120, "Go"),
			searchItem(2, "beta", "acme", 40, "Go"),
		))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, nil)

	cands, malformed, err := s.Fetch(context.Background(), "task runner", 10, "Go", 1)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if malformed != 0 {
		t.Errorf("malformed = %d, expected 0", malformed)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].FullName() != "acme/alpha" || cands[0].Stars() != 120 {
		t.Errorf("unexpected first candidate: %s (%d stars)", cands[0].FullName(), cands[0].Stars())
	}
}

func TestFetch_SkipsMalformedRecords(t *testing.T) {
	broken := searchItem(3, "", "acme", 50, "Go") // missing name

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, searchBody(
			searchItem(1, "alpha", "acme", 120, "Go"),
			broken,
		))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, nil)

	cands, malformed, err := s.Fetch(context.Background(), "task runner", 0, "", 1)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if malformed != 1 {
		t.Errorf("malformed = %d, expected 1", malformed)
	}
	if len(cands) != 1 {
		t.Errorf("expected 1 candidate, got %d", len(cands))
	}
}

func TestFetch_LocalFiltersReapplied(t *testing.T) {
	// Provider-side qualifiers are best-effort: the page carries records
	// below the star threshold and in the wrong language.
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, searchBody(
			searchItem(1, "alpha", "acme", 120, "Go"),
			searchItem(2, "beta", "acme", 3, "Go"),      // below min stars
			searchItem(3, "gamma", "acme", 200, "Rust"), // wrong language
		))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, nil)

	cands, _, err := s.Fetch(context.Background(), "task runner", 10, "go", 1)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(cands) != 1 || cands[0].ID() != 1 {
		t.Fatalf("expected only candidate 1, got %d candidates", len(cands))
	}
}

func TestFetch_DedupsAcrossPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "" || page == "1" {
			w.Header().Set("Link",
				fmt.Sprintf(`<%s/api/v3/search/repositories?page=2>; rel="next"`, "http://"+r.Host))
			writeTestJSON(t, w, searchBody(
				searchItem(1, "alpha", "acme", 120, "Go"),
				searchItem(2, "beta", "acme", 80, "Go"),
			))
			return
		}
		// Page 2 repeats candidate 2 (result sets shift between pages).
		writeTestJSON(t, w, searchBody(
			searchItem(2, "beta", "acme", 80, "Go"),
			searchItem(3, "gamma", "acme", 60, "Go"),
		))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, nil)

	cands, _, err := s.Fetch(context.Background(), "task runner", 0, "", 2)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("expected 3 unique candidates, got %d", len(cands))
	}
	seen := map[int64]bool{}
	for _, c := range cands {
		if seen[c.ID()] {
			t.Fatalf("duplicate candidate id %d", c.ID())
		}
		seen[c.ID()] = true
	}
}

func TestFetch_PageBudgetStopsPagination(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Link",
			fmt.Sprintf(`<%s/api/v3/search/repositories?page=%d>; rel="next"`, "http://"+r.Host, calls+1))
		writeTestJSON(t, w, searchBody(searchItem(int64(calls), "repo", "acme", 10, "Go")))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, nil)

	if _, _, err := s.Fetch(context.Background(), "task runner", 0, "", 2); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("provider called %d times, expected page budget of 2", calls)
	}
}

func TestFetch_RateLimitMapsToThrottled(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "30")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, nil)

	_, _, err := s.Fetch(context.Background(), "task runner", 0, "", 1)
	if !errors.Is(err, domain.ErrUpstreamThrottled) {
		t.Fatalf("expected ErrUpstreamThrottled, got %v", err)
	}

	var te *domain.ThrottledError
	if !errors.As(err, &te) {
		t.Fatal("expected ThrottledError with retry-after hint")
	}
	if te.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %s, expected positive hint", te.RetryAfter)
	}
}

func TestFetch_ServerErrorMapsToUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, nil)

	_, _, err := s.Fetch(context.Background(), "task runner", 0, "", 1)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestFetch_ReadmeEnrichment(t *testing.T) {
	readme := "# Alpha\nA task runner."

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, searchBody(searchItem(1, "alpha", "acme", 120, "Go")))
	})
	mux.HandleFunc("/api/v3/repos/acme/alpha/readme", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, map[string]any{
			"type":     "file",
			"name":     "README.md",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(readme)),
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, func(cfg *Config) {
		cfg.FetchReadmes = true
	})

	cands, _, err := s.Fetch(context.Background(), "task runner", 0, "", 1)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].ReadmeExcerpt() != readme {
		t.Errorf("readme excerpt = %q, expected %q", cands[0].ReadmeExcerpt(), readme)
	}
}

func TestFetch_ReadmeFailureIsSoft(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(t, w, searchBody(searchItem(1, "alpha", "acme", 120, "Go")))
	})
	mux.HandleFunc("/api/v3/repos/acme/alpha/readme", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSearcher(t, server.URL, func(cfg *Config) {
		cfg.FetchReadmes = true
	})

	cands, _, err := s.Fetch(context.Background(), "task runner", 0, "", 1)
	if err != nil {
		t.Fatalf("readme failure must not fail the fetch: %v", err)
	}
	if cands[0].ReadmeExcerpt() != "" {
		t.Errorf("expected empty excerpt, got %q", cands[0].ReadmeExcerpt())
	}
}

func TestFetch_ContextCancellationPassesThrough(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	defer close(release)

	s := newTestSearcher(t, server.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := s.Fetch(ctx, "task runner", 0, "", 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatal("cancellation must not be reported as a provider outage")
	}
}

func TestBuildQuery(t *testing.T) {
	if got := buildQuery("web framework", 0, ""); got != "web framework" {
		t.Errorf("buildQuery = %q", got)
	}
	if got := buildQuery("web framework", 50, "Go"); got != "web framework stars:>=50 language:Go" {
		t.Errorf("buildQuery = %q", got)
	}
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}
