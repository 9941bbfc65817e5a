package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hiraku-dev/kioku/pkg/model"
)

// UpdateInput contains the partial fields for updating a memory.
// Nil fields are left untouched.
type UpdateInput struct {
	Content       *string
	EmbeddingText *string

	// Metadata, when non-nil, replaces the existing bag as a whole.
	Metadata map[string]any
}

// Update applies the partial changes and re-embeds when the content or
// embedding text changed. Returns nil without error when the ID is
// absent.
func (uc *UseCase) Update(ctx context.Context, id model.MemoryID, input UpdateInput) (*model.Memory, error) {
	if input.Content == nil && input.EmbeddingText == nil && input.Metadata == nil {
		return nil, goerr.New("no fields to update", goerr.V("id", id))
	}

	mem, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, nil
	}

	if input.Content != nil {
		mem.Content = *input.Content
	}
	if input.Metadata != nil {
		mem.Metadata = input.Metadata
	}

	if input.Content != nil || input.EmbeddingText != nil {
		text := mem.Content
		if input.EmbeddingText != nil {
			text = *input.EmbeddingText
		}
		embedding, err := uc.embedder.Embed(ctx, text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to re-embed content", goerr.V("id", id))
		}
		mem.Embedding = embedding
	}

	mem.UpdatedAt = time.Now().UTC()

	if err := uc.repo.Update(ctx, mem); err != nil {
		return nil, err
	}

	return mem, nil
}
