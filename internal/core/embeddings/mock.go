package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

// LCG constants for deterministic pseudo-random generation.
const (
	lcgMultiplier = 6364136223846793005
	lcgIncrement  = 1442695040888963407

	seedShift  = 33
	floatScale = 0x40000000
)

// Mock generates deterministic unit-length embeddings from a text hash, so
// tests and local runs get stable vectors for the same input without any
// network dependency.
type Mock struct {
	dimension int
}

var _ Client = (*Mock)(nil)

func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	return &Mock{dimension: dimension}
}

func (m *Mock) Dimensions() int {
	return m.dimension
}

func (m *Mock) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dimension)
	for i := range vec {
		seed = seed*lcgMultiplier + lcgIncrement
		vec[i] = float32(int64(seed>>seedShift)-floatScale) / float32(floatScale)
	}

	return unitNorm(vec), nil
}

// unitNorm scales a vector to unit length; the zero vector stays untouched.
func unitNorm(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	if sum == 0 {
		return vec
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}

	return vec
}
