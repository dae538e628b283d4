package vector

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrModelMismatch signals an attempt to compare vectors from different embedding models.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrDimMismatch signals a vector dimension mismatch.
	ErrDimMismatch = errors.New("vector dimension mismatch")
)

// Vector is a fixed-dimensionality embedding bound to one embedding-model
// identity. Vectors from different models are never compared: every
// operation checks the model tag and fails fast on mismatch.
type Vector struct {
	model  string
	values []float32
}

// New creates a model-tagged vector.
func New(model string, values []float32) (Vector, error) {
	if model == "" {
		return Vector{}, fmt.Errorf("model identity is required")
	}
	if len(values) == 0 {
		return Vector{}, fmt.Errorf("vector values are required")
	}
	return Vector{model: model, values: values}, nil
}

// Model returns the embedding-model identity.
func (v *Vector) Model() string { return v.model }

// Values returns the raw components.
func (v *Vector) Values() []float32 { return v.values }

// Dim returns the dimensionality.
func (v *Vector) Dim() int { return len(v.values) }

// IsZero reports whether the vector is unset.
func (v *Vector) IsZero() bool { return len(v.values) == 0 }

// compatible checks model identity and dimensionality of two vectors.
func compatible(a, b Vector) error {
	if a.model != b.model {
		return fmt.Errorf("%w: %q vs %q", ErrModelMismatch, a.model, b.model)
	}
	if len(a.values) != len(b.values) {
		return fmt.Errorf("%w: %d vs %d", ErrDimMismatch, len(a.values), len(b.values))
	}
	return nil
}

// Cosine computes the cosine of the angle between two compatible vectors,
// in [-1,1]. Zero-magnitude vectors yield 0 (orthogonal by convention).
func Cosine(a, b Vector) (float64, error) {
	if err := compatible(a, b); err != nil {
		return 0, err
	}

	var dot, normA, normB float64
	for i := range a.values {
		av := float64(a.values[i])
		bv := float64(b.values[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Guard against float drift outside [-1,1].
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return cos, nil
}

// Similarity maps cosine into [0,1] as (cosine+1)/2: orthogonal content
// scores 0.5, identical content 1.0. The transform is exact; the ranking
// fusion formula depends on it.
func Similarity(a, b Vector) (float64, error) {
	cos, err := Cosine(a, b)
	if err != nil {
		return 0, err
	}
	return (cos + 1) / 2, nil
}
