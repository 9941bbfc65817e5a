package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hiraku-dev/kioku/pkg/model"
)

// Vote adjusts a memory's usefulness by +1 or -1. Voting also counts
// as an access. Returns nil without error when the ID is absent.
func (uc *UseCase) Vote(ctx context.Context, id model.MemoryID, delta int64) (*model.Memory, error) {
	if delta != 1 && delta != -1 {
		return nil, goerr.New("vote delta must be +1 or -1", goerr.V("delta", delta))
	}

	mem, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, nil
	}

	if err := uc.repo.AddUsefulness(ctx, id, delta); err != nil {
		return nil, err
	}
	if err := uc.repo.BumpAccess(ctx, []model.MemoryID{id}, time.Now().UTC()); err != nil {
		return nil, err
	}

	return uc.repo.FindByID(ctx, id)
}
