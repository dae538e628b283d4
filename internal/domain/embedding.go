package domain

import (
	"context"

	"github.com/codeinspire/inspire/internal/domain/vector"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the model-tagged vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Vector       vector.Vector
	PromptTokens int
	TotalTokens  int
}
