package facematch

import (
	"fmt"
	"math"
)

// Metric computes the distance between two equal-length embeddings.
// Smaller is more similar and identical vectors have distance 0.
type Metric interface {
	Name() string
	Distance(a, b []float32) float64
}

// Metric names accepted by ParseMetric.
const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
)

// Cosine is 1 - cosine similarity, in [0, 2]. It ignores vector scale,
// which suits L2-normalized face embeddings.
type Cosine struct{}

func (Cosine) Name() string { return MetricCosine }

// Distance returns 2 (maximum) for mismatched lengths or zero vectors.
func (Cosine) Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	// sqrt(normA*normB) keeps identical vectors at exactly distance 0.
	similarity := dotProduct / math.Sqrt(normA*normB)
	// Clamp to [-1, 1] to absorb floating point error.
	similarity = max(-1, min(1, similarity))

	return 1 - similarity
}

// Euclidean is the L2 norm of a - b.
type Euclidean struct{}

func (Euclidean) Name() string { return MetricEuclidean }

// Distance returns +Inf for mismatched lengths.
func (Euclidean) Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ParseMetric returns the metric registered under name.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case MetricCosine:
		return Cosine{}, nil
	case MetricEuclidean:
		return Euclidean{}, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q (want %q or %q)", name, MetricCosine, MetricEuclidean)
	}
}

// ValidateEmbedding rejects empty vectors and non-finite components.
func ValidateEmbedding(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidEmbedding, i, x)
		}
	}
	return nil
}
