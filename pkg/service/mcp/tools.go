package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/ranking"
	"github.com/hiraku-dev/kioku/pkg/usecase/memory"
)

// memoryPayload is the wire shape of a memory in tool results
type memoryPayload struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	SupersededBy string         `json:"superseded_by,omitempty"`
	Deleted      bool           `json:"deleted,omitempty"`
	Usefulness   int64          `json:"usefulness"`
	AccessCount  int64          `json:"access_count"`
	LastAccessed *time.Time     `json:"last_accessed,omitempty"`
	Score        *float64       `json:"score,omitempty"`
}

func toPayload(mem *model.Memory) memoryPayload {
	p := memoryPayload{
		ID:           string(mem.ID),
		Content:      mem.Content,
		Metadata:     mem.Metadata,
		CreatedAt:    mem.CreatedAt,
		UpdatedAt:    mem.UpdatedAt,
		Deleted:      mem.Supersession.IsDeleted(),
		Usefulness:   mem.Usefulness,
		AccessCount:  mem.AccessCount,
		LastAccessed: mem.LastAccessed,
	}
	if successor, ok := mem.Supersession.Successor(); ok {
		p.SupersededBy = string(successor)
	}
	return p
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func notFoundResult(id string) *mcp.CallToolResult {
	res := textResult("memory not found: %s", id)
	res.IsError = true
	return res
}

type storeParams struct {
	Content       string         `json:"content" jsonschema:"The memory text to store"`
	EmbeddingText string         `json:"embedding_text,omitempty" jsonschema:"Alternative text to embed instead of the content"`
	Metadata      map[string]any `json:"metadata,omitempty" jsonschema:"Arbitrary key-value metadata"`
	Supersedes    []string       `json:"supersedes,omitempty" jsonschema:"IDs of memories this one replaces"`
}

func (s *Server) store(ctx context.Context, req *mcp.CallToolRequest, params *storeParams) (*mcp.CallToolResult, any, error) {
	supersedes := make([]model.MemoryID, len(params.Supersedes))
	for i, id := range params.Supersedes {
		supersedes[i] = model.MemoryID(id)
	}

	mem, err := s.uc.Store(ctx, memory.StoreInput{
		Content:       params.Content,
		EmbeddingText: params.EmbeddingText,
		Metadata:      params.Metadata,
		Supersedes:    supersedes,
	})
	if err != nil {
		return nil, nil, err
	}

	return textResult("stored memory %s", mem.ID), toPayload(mem), nil
}

type getParams struct {
	ID string `json:"id" jsonschema:"The memory ID to fetch"`
}

func (s *Server) get(ctx context.Context, req *mcp.CallToolRequest, params *getParams) (*mcp.CallToolResult, any, error) {
	mem, err := s.uc.Get(ctx, model.MemoryID(params.ID))
	if err != nil {
		return nil, nil, err
	}
	if mem == nil {
		return notFoundResult(params.ID), nil, nil
	}

	return textResult("%s", mem.Content), toPayload(mem), nil
}

type updateParams struct {
	ID            string         `json:"id" jsonschema:"The memory ID to update"`
	Content       *string        `json:"content,omitempty" jsonschema:"New content; triggers re-embedding"`
	EmbeddingText *string        `json:"embedding_text,omitempty" jsonschema:"New embedding text; triggers re-embedding"`
	Metadata      map[string]any `json:"metadata,omitempty" jsonschema:"Replaces the whole metadata map"`
}

func (s *Server) update(ctx context.Context, req *mcp.CallToolRequest, params *updateParams) (*mcp.CallToolResult, any, error) {
	mem, err := s.uc.Update(ctx, model.MemoryID(params.ID), memory.UpdateInput{
		Content:       params.Content,
		EmbeddingText: params.EmbeddingText,
		Metadata:      params.Metadata,
	})
	if err != nil {
		return nil, nil, err
	}
	if mem == nil {
		return notFoundResult(params.ID), nil, nil
	}

	return textResult("updated memory %s", mem.ID), toPayload(mem), nil
}

type deleteParams struct {
	ID string `json:"id" jsonschema:"The memory ID to delete"`
}

func (s *Server) delete(ctx context.Context, req *mcp.CallToolRequest, params *deleteParams) (*mcp.CallToolResult, any, error) {
	found, err := s.uc.Delete(ctx, model.MemoryID(params.ID))
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return notFoundResult(params.ID), nil, nil
	}

	return textResult("deleted memory %s", params.ID), map[string]any{"deleted": true}, nil
}

type voteParams struct {
	ID    string `json:"id" jsonschema:"The memory ID to vote on"`
	Delta int64  `json:"delta" jsonschema:"+1 for useful, -1 for not useful"`
}

func (s *Server) vote(ctx context.Context, req *mcp.CallToolRequest, params *voteParams) (*mcp.CallToolResult, any, error) {
	mem, err := s.uc.Vote(ctx, model.MemoryID(params.ID), params.Delta)
	if err != nil {
		return nil, nil, err
	}
	if mem == nil {
		return notFoundResult(params.ID), nil, nil
	}

	return textResult("memory %s usefulness is now %d", mem.ID, mem.Usefulness), toPayload(mem), nil
}

type searchParams struct {
	Query          string `json:"query" jsonschema:"Free-text search query"`
	Intent         string `json:"intent" jsonschema:"Why you are searching; changes the ranking profile"`
	Limit          int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 10)"`
	IncludeDeleted bool   `json:"include_deleted,omitempty" jsonschema:"Also surface soft-deleted memories"`
}

func (s *Server) search(ctx context.Context, req *mcp.CallToolRequest, params *searchParams) (*mcp.CallToolResult, any, error) {
	limit := params.Limit
	if limit == 0 {
		limit = 10
	}

	results, err := s.uc.Search(ctx, params.Query, ranking.Options{
		Intent:         model.Intent(params.Intent),
		Limit:          limit,
		IncludeDeleted: params.IncludeDeleted,
	})
	if err != nil {
		return nil, nil, err
	}

	payloads := make([]memoryPayload, len(results))
	for i, r := range results {
		p := toPayload(r.Memory)
		score := r.Score
		p.Score = &score
		if r.Deleted {
			p.Deleted = true
		}
		payloads[i] = p
	}

	return textResult("found %d memories", len(payloads)), map[string]any{"memories": payloads}, nil
}

type storeHandoffParams struct {
	Summary   string   `json:"summary" jsonschema:"What happened this session"`
	NextSteps []string `json:"next_steps,omitempty" jsonschema:"What to do next"`
	Blockers  []string `json:"blockers,omitempty" jsonschema:"What is blocking progress"`
	MemoryIDs []string `json:"memory_ids,omitempty" jsonschema:"IDs of memories this handoff builds on"`
}

func (s *Server) storeHandoff(ctx context.Context, req *mcp.CallToolRequest, params *storeHandoffParams) (*mcp.CallToolResult, any, error) {
	ids := make([]model.MemoryID, len(params.MemoryIDs))
	for i, id := range params.MemoryIDs {
		ids[i] = model.MemoryID(id)
	}

	mem, err := s.uc.StoreHandoff(ctx, memory.HandoffInput{
		Summary:   params.Summary,
		NextSteps: params.NextSteps,
		Blockers:  params.Blockers,
		MemoryIDs: ids,
	})
	if err != nil {
		return nil, nil, err
	}

	return textResult("stored handoff"), toPayload(mem), nil
}

type getHandoffParams struct{}

func (s *Server) getHandoff(ctx context.Context, req *mcp.CallToolRequest, params *getHandoffParams) (*mcp.CallToolResult, any, error) {
	mem, err := s.uc.GetLatestHandoff(ctx)
	if err != nil {
		return nil, nil, err
	}
	if mem == nil {
		res := textResult("no handoff stored yet")
		return res, nil, nil
	}

	return textResult("%s", mem.Content), toPayload(mem), nil
}

type trackAccessParams struct {
	IDs []string `json:"ids" jsonschema:"IDs of memories that were used"`
}

func (s *Server) trackAccess(ctx context.Context, req *mcp.CallToolRequest, params *trackAccessParams) (*mcp.CallToolResult, any, error) {
	ids := make([]model.MemoryID, len(params.IDs))
	for i, id := range params.IDs {
		ids[i] = model.MemoryID(id)
	}

	if err := s.uc.TrackAccess(ctx, ids); err != nil {
		return nil, nil, err
	}

	return textResult("tracked access for %d memories", len(ids)), map[string]any{"tracked": len(ids)}, nil
}
