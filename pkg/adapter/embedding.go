package adapter

import (
	"context"
	"math"
)

// Embedder converts text into fixed-length unit vectors. The dimension
// is fixed for the process lifetime and must match the vector column
// width of the database it writes into.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int
}

// normalize scales a vector to unit length in place and returns it.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
