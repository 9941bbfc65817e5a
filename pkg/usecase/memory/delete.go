package memory

import (
	"context"

	"github.com/hiraku-dev/kioku/pkg/model"
)

// Delete soft-deletes a memory by setting its tombstone. Returns
// whether the memory existed and was live; deleting an already-deleted
// or unknown ID returns false.
func (uc *UseCase) Delete(ctx context.Context, id model.MemoryID) (bool, error) {
	mem, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if mem == nil || mem.Supersession.IsDeleted() {
		return false, nil
	}

	return uc.repo.MarkDeleted(ctx, id)
}
