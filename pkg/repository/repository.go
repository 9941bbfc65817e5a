package repository

import (
	"context"
	"time"

	"github.com/hiraku-dev/kioku/pkg/model"
)

// ScoredMemory is a raw hybrid-search row: a memory and its fused
// relevance score. Supersession is not resolved at this layer.
type ScoredMemory struct {
	Memory *model.Memory
	Score  float64
}

// Repository defines the persistence contract for memories
type Repository interface {
	// Insert saves a new memory. Fails when the ID already exists.
	Insert(ctx context.Context, mem *model.Memory) error

	// Upsert inserts the memory, or updates content, embedding,
	// metadata and updatedAt when the ID already exists. Vote and
	// access counters of an existing row are kept.
	Upsert(ctx context.Context, mem *model.Memory) error

	// FindByID retrieves a memory by ID. Returns nil without error
	// when the ID is absent.
	FindByID(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// Update overwrites all mutable fields of an existing memory.
	Update(ctx context.Context, mem *model.Memory) error

	// MarkDeleted sets the tombstone and refreshes updatedAt.
	// Returns false when the ID is absent.
	MarkDeleted(ctx context.Context, id model.MemoryID) (bool, error)

	// Supersede points an existing memory at its replacement.
	// Returns false when the ID is absent.
	Supersede(ctx context.Context, id, successor model.MemoryID) (bool, error)

	// BumpAccess increments accessCount and stamps lastAccessed for
	// each given ID. Unknown IDs are ignored.
	BumpAccess(ctx context.Context, ids []model.MemoryID, at time.Time) error

	// AddUsefulness adjusts the usefulness accumulator by delta and
	// refreshes updatedAt.
	AddUsefulness(ctx context.Context, id model.MemoryID, delta int64) error

	// FindHybrid runs a combined nearest-neighbor and full-text query
	// and returns rows fused by reciprocal rank fusion, best first.
	// Superseded and deleted rows are included; resolution is the
	// ranking engine's job.
	FindHybrid(ctx context.Context, embedding []float32, query string, limit int) ([]ScoredMemory, error)

	Close() error
}
