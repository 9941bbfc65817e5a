package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/utils/logging"
)

// StoreInput contains the fields for creating a new memory
type StoreInput struct {
	Content string

	// EmbeddingText, when set, is embedded instead of Content. Useful
	// when the stored text carries markup the embedding should ignore.
	EmbeddingText string

	Metadata map[string]any

	// Supersedes lists memories this one logically replaces. Their
	// forward pointers are set to the new memory, forming a chain.
	Supersedes []model.MemoryID
}

// Store embeds the content and persists a new live memory with zeroed
// vote and access counters.
func (uc *UseCase) Store(ctx context.Context, input StoreInput) (*model.Memory, error) {
	if input.Content == "" {
		return nil, goerr.New("content is required")
	}

	text := input.Content
	if input.EmbeddingText != "" {
		text = input.EmbeddingText
	}

	embedding, err := uc.embedder.Embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content")
	}

	now := time.Now().UTC()
	mem := &model.Memory{
		ID:           model.NewMemoryID(),
		Content:      input.Content,
		Embedding:    embedding,
		Metadata:     input.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
		Supersession: model.Live(),
		LastAccessed: &now,
	}

	if err := uc.repo.Insert(ctx, mem); err != nil {
		return nil, err
	}

	for _, old := range input.Supersedes {
		found, err := uc.repo.Supersede(ctx, old, mem.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			logging.From(ctx).Warn("superseded memory not found", "id", old)
		}
	}

	return mem, nil
}
