// Package memory orchestrates the store, get, update, delete, vote,
// search and handoff operations over the repository, the embedding
// provider and the ranking engine.
package memory

import (
	"github.com/hiraku-dev/kioku/pkg/adapter"
	"github.com/hiraku-dev/kioku/pkg/ranking"
	"github.com/hiraku-dev/kioku/pkg/repository"
)

// overfetchFactor over-fetches raw hybrid rows relative to the
// requested limit, leaving room for deduplication and chain-following
// losses.
const overfetchFactor = 3

// UseCase provides memory operations
type UseCase struct {
	repo     repository.Repository
	embedder adapter.Embedder
	engine   *ranking.Engine
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithEngine replaces the ranking engine, e.g. with a seeded one.
func WithEngine(engine *ranking.Engine) Option {
	return func(uc *UseCase) {
		uc.engine = engine
	}
}

// New creates a new memory UseCase instance
func New(repo repository.Repository, embedder adapter.Embedder, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:     repo,
		embedder: embedder,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.engine == nil {
		uc.engine = ranking.New(repo)
	}

	return uc
}
