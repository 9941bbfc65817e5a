// Package mcp exposes the memory operations as MCP tools over stdio
// and streamable HTTP transports.
package mcp

import (
	"context"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/usecase/memory"
)

// Server wraps the memory UseCase behind an MCP tool surface
type Server struct {
	uc     *memory.UseCase
	server *mcp.Server
}

// New creates an MCP server with all memory tools registered
func New(uc *memory.UseCase, version string) (*Server, error) {
	s := &Server{
		uc: uc,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "kioku",
			Version: version,
		}, nil),
	}

	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) registerTools() error {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_store",
		Description: "Store a new memory note. Optionally supersede older memories it replaces.",
	}, s.store)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_get",
		Description: "Fetch a memory by ID. Counts as an access.",
	}, s.get)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_update",
		Description: "Update a memory's content, embedding text or metadata. Re-embeds when text changes.",
	}, s.update)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_delete",
		Description: "Soft-delete a memory. It stays resolvable but drops out of search results.",
	}, s.delete)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_vote",
		Description: "Vote a memory up (+1) or down (-1) to adjust its usefulness.",
	}, s.vote)

	searchSchema, err := searchInputSchema()
	if err != nil {
		return err
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "memory_search",
		Description: "Search memories by hybrid semantic and full-text relevance, " +
			"ranked under the given intent. Never mutates access stats.",
		InputSchema: searchSchema,
	}, s.search)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_store_handoff",
		Description: "Overwrite the session handoff checkpoint with a summary, next steps and blockers.",
	}, s.storeHandoff)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_get_handoff",
		Description: "Fetch the latest session handoff checkpoint, if any.",
	}, s.getHandoff)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_track_access",
		Description: "Record that the given memories were used, bumping their access stats.",
	}, s.trackAccess)

	return nil
}

// searchInputSchema derives the schema from the params struct and pins
// the intent field to the closed enum, so clients see the legal values
// instead of a free-form string.
func searchInputSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[searchParams](nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build search tool schema")
	}

	intent, ok := schema.Properties["intent"]
	if !ok {
		return nil, goerr.New("search tool schema has no intent property")
	}
	for _, v := range model.Intents() {
		intent.Enum = append(intent.Enum, string(v))
	}

	return schema, nil
}

// RunStdio serves tool calls over stdin/stdout until the context is
// cancelled or the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "MCP stdio server failed")
	}
	return nil
}

// HTTPHandler returns the streamable HTTP bridge for the same tools.
// Responses stream over SSE when the client negotiates it.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
