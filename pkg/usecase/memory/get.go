package memory

import (
	"context"
	"time"

	"github.com/hiraku-dev/kioku/pkg/model"
)

// Get fetches a memory by ID. An explicit read counts as an access:
// the counter and timestamp are bumped before the memory is returned.
// Returns nil without error when the ID is absent.
func (uc *UseCase) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	mem, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, nil
	}

	if mem.Supersession.IsLive() {
		now := time.Now().UTC()
		if err := uc.repo.BumpAccess(ctx, []model.MemoryID{id}, now); err != nil {
			return nil, err
		}
		mem.AccessCount++
		mem.LastAccessed = &now
	}

	return mem, nil
}

// TrackAccess bumps access stats for a batch of memories without
// fetching them. Callers use it to signal "I used these" after a
// search, since search itself never writes.
func (uc *UseCase) TrackAccess(ctx context.Context, ids []model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}
	return uc.repo.BumpAccess(ctx, ids, time.Now().UTC())
}
