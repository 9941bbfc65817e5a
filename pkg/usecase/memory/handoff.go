package memory

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hiraku-dev/kioku/pkg/model"
)

// HandoffInput contains the fields for a session-resumption checkpoint
type HandoffInput struct {
	Summary   string
	NextSteps []string
	Blockers  []string

	// MemoryIDs links the memories this checkpoint builds on. Being
	// referenced here counts as a use for their access stats.
	MemoryIDs []model.MemoryID
}

// StoreHandoff overwrites the singleton checkpoint record with a
// structured markdown rendering of the input. Each referenced memory
// gets an access bump.
func (uc *UseCase) StoreHandoff(ctx context.Context, input HandoffInput) (*model.Memory, error) {
	if input.Summary == "" {
		return nil, goerr.New("summary is required")
	}

	content := renderHandoff(input)

	embedding, err := uc.embedder.Embed(ctx, content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed handoff")
	}

	ids := make([]string, len(input.MemoryIDs))
	for i, id := range input.MemoryIDs {
		ids[i] = string(id)
	}

	now := time.Now().UTC()
	mem := &model.Memory{
		ID:        model.HandoffID,
		Content:   content,
		Embedding: embedding,
		Metadata: map[string]any{
			"type":       "handoff",
			"memory_ids": ids,
		},
		CreatedAt:    now,
		UpdatedAt:    now,
		Supersession: model.Live(),
		LastAccessed: &now,
	}

	if err := uc.repo.Upsert(ctx, mem); err != nil {
		return nil, err
	}

	if len(input.MemoryIDs) > 0 {
		if err := uc.TrackAccess(ctx, input.MemoryIDs); err != nil {
			return nil, err
		}
	}

	return uc.repo.FindByID(ctx, model.HandoffID)
}

// GetLatestHandoff reads the singleton checkpoint record. Returns nil
// without error when no handoff has been stored yet.
func (uc *UseCase) GetLatestHandoff(ctx context.Context) (*model.Memory, error) {
	mem, err := uc.repo.FindByID(ctx, model.HandoffID)
	if err != nil {
		return nil, err
	}
	if mem == nil || !mem.Supersession.IsLive() {
		return nil, nil
	}
	return mem, nil
}

func renderHandoff(input HandoffInput) string {
	var b strings.Builder
	b.WriteString("# Session Handoff\n\n## Summary\n\n")
	b.WriteString(input.Summary)
	b.WriteString("\n")

	if len(input.NextSteps) > 0 {
		b.WriteString("\n## Next Steps\n\n")
		for _, step := range input.NextSteps {
			b.WriteString("- " + step + "\n")
		}
	}

	if len(input.Blockers) > 0 {
		b.WriteString("\n## Blockers\n\n")
		for _, blocker := range input.Blockers {
			b.WriteString("- " + blocker + "\n")
		}
	}

	return b.String()
}
