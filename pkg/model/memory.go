package model

import (
	"time"

	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// HandoffID is the fixed slot for the per-project session handoff record.
// Storing a new handoff overwrites the previous one.
var HandoffID = MemoryID(uuid.Nil.String())

// Memory is a stored note from an AI coding session, retrievable by
// hybrid semantic + full-text search
type Memory struct {
	ID        MemoryID
	Content   string
	Embedding []float32

	// Metadata is a caller-defined JSON-compatible bag. It is replaced
	// as a whole on update, never merged.
	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time

	Supersession Supersession

	// Usefulness accumulates explicit +1/-1 votes. Ranking applies a
	// saturating transform, so it can grow without bound.
	Usefulness int64

	AccessCount  int64
	LastAccessed *time.Time
}

// Clone returns a deep copy so callers can hand memories out without
// aliasing the repository's row buffers.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	c.Embedding = append([]float32(nil), m.Embedding...)
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	if m.LastAccessed != nil {
		t := *m.LastAccessed
		c.LastAccessed = &t
	}
	return &c
}
