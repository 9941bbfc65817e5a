package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/hiraku-dev/kioku/pkg/model"
)

func getCommand() *cli.Command {
	var (
		cfg      config
		memoryID model.MemoryID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Memory ID to fetch",
			Destination: (*string)(&memoryID),
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "get",
		Usage: "Show a memory by ID",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			mem, err := uc.Get(ctx, memoryID)
			if err != nil {
				return err
			}
			if mem == nil {
				return goerr.New("memory not found", goerr.V("id", memoryID))
			}

			return printMemory(c.Root().Writer, mem)
		},
	}
}

// printMemory writes a memory as indented JSON without the embedding,
// which is noise at the terminal.
func printMemory(w io.Writer, mem *model.Memory) error {
	display := map[string]any{
		"id":           mem.ID,
		"content":      mem.Content,
		"metadata":     mem.Metadata,
		"created_at":   mem.CreatedAt,
		"updated_at":   mem.UpdatedAt,
		"usefulness":   mem.Usefulness,
		"access_count": mem.AccessCount,
	}
	if mem.LastAccessed != nil {
		display["last_accessed"] = mem.LastAccessed
	}
	if successor, ok := mem.Supersession.Successor(); ok {
		display["superseded_by"] = successor
	}
	if mem.Supersession.IsDeleted() {
		display["deleted"] = true
	}

	data, err := json.MarshalIndent(display, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to render memory")
	}
	fmt.Fprintln(w, string(data))
	return nil
}
