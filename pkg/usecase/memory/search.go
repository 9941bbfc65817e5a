package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hiraku-dev/kioku/pkg/ranking"
)

// Search embeds the query, over-fetches raw hybrid rows and ranks
// them under the requested intent. Search is read-only: it never
// touches access stats or usefulness, so browsing cannot reinforce
// its own ranking. An empty result is a valid outcome, not an error.
func (uc *UseCase) Search(ctx context.Context, query string, opts ranking.Options) ([]ranking.Result, error) {
	if query == "" {
		return nil, goerr.New("query is required")
	}
	if err := opts.Intent.Validate(); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		return nil, goerr.New("limit must be positive", goerr.V("limit", opts.Limit))
	}

	embedding, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	rows, err := uc.repo.FindHybrid(ctx, embedding, query, opts.Limit*overfetchFactor)
	if err != nil {
		return nil, err
	}

	return uc.engine.Rank(ctx, rows, opts)
}
