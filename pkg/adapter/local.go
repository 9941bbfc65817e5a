package adapter

import (
	"context"
	"hash/fnv"
	"math"
)

// LocalEmbedder generates deterministic embeddings from a text hash.
// It has no semantic understanding; identical texts map to identical
// vectors and different texts are close to orthogonal. It serves as
// the offline default and as the test embedder.
type LocalEmbedder struct {
	dimension int
}

type LocalOption func(*LocalEmbedder)

func WithLocalDimension(dim int) LocalOption {
	return func(l *LocalEmbedder) {
		l.dimension = dim
	}
}

func NewLocal(opts ...LocalOption) *LocalEmbedder {
	l := &LocalEmbedder{dimension: 256}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LocalEmbedder) Dimension() int {
	return l.dimension
}

func (l *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, l.dimension)
	for i := range vec {
		// LCG over the text hash: stable across processes, no global RNG
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(vec), nil
}

func (l *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}
