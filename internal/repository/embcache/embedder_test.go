package embcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/codeinspire/inspire/internal/db"
	"github.com/codeinspire/inspire/internal/domain"
	"github.com/codeinspire/inspire/internal/domain/vector"
)

func testResult(t *testing.T, model string, values []float32) domain.EmbeddingResult {
	t.Helper()
	vec, err := vector.New(model, values)
	if err != nil {
		t.Fatalf("vector.New failed: %v", err)
	}
	return domain.EmbeddingResult{Vector: vec, PromptTokens: 10, TotalTokens: 10}
}

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: testResult(t, "test-model", []float32{0.1, 0.2, 0.3})}
	ce, ms := newTestCachedEmbedder(t, inner, "test-model")
	ctx := context.Background()

	// GET → ErrKeyNotFound (cache miss)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	// SET → OK (cache put)
	var setCalled bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalled = true
		return nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Vector.Dim() != 3 || result.Vector.Values()[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Vector.Values())
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if !setCalled {
		t.Fatal("expected SET to be called for cache put")
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: testResult(t, "test-model", []float32{0.1, 0.2, 0.3})}
	ce, ms := newTestCachedEmbedder(t, inner, "test-model")
	ctx := context.Background()

	cached := valuesToCacheBytes([]float32{0.4, 0.5, 0.6})

	// GET → cached bytes
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Vector.Values()[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Vector.Values())
	}
	if result.Vector.Model() != "test-model" {
		t.Fatalf("cached vector lost its model tag: %q", result.Vector.Model())
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if got := inner.calls.Load(); got != 0 {
		t.Fatalf("inner embedder called %d times on cache hit", got)
	}
}

func TestEmbed_KeyCarriesModel(t *testing.T) {
	inner := &mockEmbedder{result: testResult(t, "model-a", []float32{0.1})}
	ce, ms := newTestCachedEmbedder(t, inner, "model-a")

	var gotKey string
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		gotKey = key
		return nil, db.ErrKeyNotFound
	}

	if _, err := ce.Embed(context.Background(), "same text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(gotKey, "inspire:emb_cache:model-a:") {
		t.Fatalf("cache key %q does not carry the model identity", gotKey)
	}
}

func TestEmbed_CorruptEntryFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: testResult(t, "test-model", []float32{0.7, 0.8})}
	ce, ms := newTestCachedEmbedder(t, inner, "test-model")

	// 5 bytes is not a valid float32 sequence.
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 2, 3, 4, 5}, nil
	}

	result, err := ce.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Vector.Values()[0] != 0.7 {
		t.Fatalf("expected fresh embedding after corrupt cache entry, got %v", result.Vector.Values())
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("inner embedder called %d times, expected 1", got)
	}
}

func TestEmbed_StoreFailureIsSoft(t *testing.T) {
	inner := &mockEmbedder{result: testResult(t, "test-model", []float32{0.1})}
	ce, ms := newTestCachedEmbedder(t, inner, "test-model")

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("store down")
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		return errors.New("store down")
	}

	result, err := ce.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("store failure must not fail the embed: %v", err)
	}
	if result.Vector.IsZero() {
		t.Fatal("expected a fresh embedding despite store failure")
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}
	ce, _ := newTestCachedEmbedder(t, inner, "test-model")

	_, err := ce.Embed(context.Background(), "test text")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected wrapped ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbed_UsesTTLWhenConfigured(t *testing.T) {
	inner := &mockEmbedder{result: testResult(t, "test-model", []float32{0.1})}
	ms := &mockKVStore{}
	ce := New(inner, ms, "test-model", time.Hour, nil, zap.NewNop())

	var gotTTL time.Duration
	ms.setWithTTLFn = func(_ context.Context, _ string, _ []byte, ttl time.Duration) error {
		gotTTL = ttl
		return nil
	}

	if _, err := ce.Embed(context.Background(), "test text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTTL != time.Hour {
		t.Fatalf("SetWithTTL ttl = %s, expected 1h", gotTTL)
	}
}

func TestEmbed_CoalescesConcurrentMisses(t *testing.T) {
	inner := &mockEmbedder{
		result: testResult(t, "test-model", []float32{0.1}),
		block:  50 * time.Millisecond,
	}
	cacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "emb_cache_coalesce_test_total"},
		[]string{"result"},
	)
	ms := &mockKVStore{}
	ce := New(inner, ms, "test-model", 0, cacheTotal, zap.NewNop())

	// Back the mock with a real map so a straggler that misses the flight
	// window still gets a cache hit instead of a second inner call.
	var mu sync.Mutex
	stored := make(map[string][]byte)
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if v, ok := stored[key]; ok {
			return v, nil
		}
		return nil, db.ErrKeyNotFound
	}
	ms.setFn = func(_ context.Context, key string, value []byte) error {
		mu.Lock()
		defer mu.Unlock()
		stored[key] = value
		return nil
	}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ce.Embed(context.Background(), "same text"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("inner embedder called %d times for one key, expected 1", got)
	}
	// Only the flight leader records a miss; waiters must not inflate it.
	if got := testutil.ToFloat64(cacheTotal.WithLabelValues("miss")); got != 1 {
		t.Fatalf("miss counter = %v for one inner call, expected 1", got)
	}
}
