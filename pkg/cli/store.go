package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/usecase/memory"
)

func storeCommand() *cli.Command {
	var (
		cfg           config
		content       string
		embeddingText string
		metadataJSON  string
		supersedes    []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "content",
			Aliases:     []string{"c"},
			Usage:       "The memory text to store",
			Destination: &content,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "embedding-text",
			Usage:       "Alternative text to embed instead of the content",
			Destination: &embeddingText,
		},
		&cli.StringFlag{
			Name:        "metadata",
			Aliases:     []string{"m"},
			Usage:       "Metadata as a JSON object",
			Destination: &metadataJSON,
		},
		&cli.StringSliceFlag{
			Name:        "supersedes",
			Usage:       "IDs of memories this one replaces (repeatable)",
			Destination: &supersedes,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)

	return &cli.Command{
		Name:  "store",
		Usage: "Store a new memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			var metadata map[string]any
			if metadataJSON != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return goerr.Wrap(err, "metadata must be a JSON object")
				}
			}

			ids := make([]model.MemoryID, len(supersedes))
			for i, id := range supersedes {
				ids[i] = model.MemoryID(id)
			}

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			mem, err := uc.Store(ctx, memory.StoreInput{
				Content:       content,
				EmbeddingText: embeddingText,
				Metadata:      metadata,
				Supersedes:    ids,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "stored memory %s\n", mem.ID)
			return nil
		},
	}
}
